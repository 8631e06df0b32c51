package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingKey is returned when the caller did not supply a FID.
	ErrMissingKey = errors.New("fid is required")

	// ErrNotFound is returned when a fetch succeeded but yielded no channels.
	ErrNotFound = errors.New("no channels found for this fid")

	// ErrMalformedResponse is returned when an upstream payload does not have the
	// documented envelope. It is never retried.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrPaginationLimitExceeded is returned when the upstream keeps handing out
	// cursors past the configured page ceiling.
	ErrPaginationLimitExceeded = errors.New("pagination limit exceeded")
)

// InvalidKeyError is returned when a FID is present but not a positive integer.
type InvalidKeyError struct {
	Value string
}

// Error implements the error interface.
func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid fid: %q", e.Value)
}

// InvalidParamError is returned for a malformed optional request parameter.
type InvalidParamError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *InvalidParamError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *InvalidParamError) Unwrap() error {
	return e.Err
}

// UpstreamError carries a non-2xx upstream status, including 429 once retries
// are exhausted.
type UpstreamError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream error: status %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Message)
}

// IsRateLimited reports whether the error is a 429 after retries.
func (e *UpstreamError) IsRateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// MalformedError wraps ErrMalformedResponse with a reason.
func MalformedError(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, reason)
}

// HTTPStatus maps an aggregation error to the status a presentation layer
// should report.
func HTTPStatus(err error) int {
	var upErr *UpstreamError
	var keyErr *InvalidKeyError
	var paramErr *InvalidParamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingKey), errors.As(err, &keyErr), errors.As(err, &paramErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &upErr):
		if upErr.IsRateLimited() {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrPaginationLimitExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

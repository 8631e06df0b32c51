package utils

import (
	"errors"
	"fmt"
	"strings"

	"fidchannels/backend"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrMissingFID returns an error for when no FID was given.
func ErrMissingFID() error {
	return &ErrorWithSuggestion{
		Err:        backend.ErrMissingKey,
		Suggestion: "Pass the FID with --fid, e.g. 'fidchannels channels --fid 3'",
	}
}

// ErrNoChannels returns an error for a FID that follows no channels.
func ErrNoChannels(fid backend.FID) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%w: %s", backend.ErrNotFound, fid),
		Suggestion: "Check the FID; it may not follow any channels yet",
	}
}

// ErrUpstream returns an error for a failed upstream call with a smart suggestion.
func ErrUpstream(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: getSmartSuggestion(err),
	}
}

// Explain wraps aggregation errors with the suggestion matching their kind.
// Errors that already carry a suggestion are returned unchanged.
func Explain(fid backend.FID, err error) error {
	var withSuggestion *ErrorWithSuggestion
	var keyErr *backend.InvalidKeyError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &withSuggestion):
		return err
	case errors.Is(err, backend.ErrMissingKey):
		return ErrMissingFID()
	case errors.As(err, &keyErr):
		return WrapWithSuggestion(err, "The FID must be a positive integer")
	case errors.Is(err, backend.ErrNotFound):
		return ErrNoChannels(fid)
	default:
		return ErrUpstream(err)
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error.
func getSmartSuggestion(err error) string {
	var upErr *backend.UpstreamError
	if errors.As(err, &upErr) {
		switch {
		case upErr.IsRateLimited():
			return "The API is rate limiting requests. Wait a minute and try again"
		case upErr.Status == 401 || upErr.Status == 403:
			return "Check the API token with 'fidchannels credentials get warpcast'"
		case upErr.Status >= 500:
			return "The API is having problems. Try again later"
		}
	}

	if errors.Is(err, backend.ErrMalformedResponse) {
		return "The API response format may have changed; check for a newer release"
	}
	if errors.Is(err, backend.ErrPaginationLimitExceeded) {
		return "Raise pagination.max_pages in the config file if this FID really follows that many channels"
	}

	lowerReason := strings.ToLower(err.Error())

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "deadline exceeded") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

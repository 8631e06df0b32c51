// Package openrank provides an upstream client for the OpenRank engagement
// graph and frame ranking endpoints.
package openrank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"fidchannels/backend"
	"fidchannels/internal/ratelimit"
	"fidchannels/internal/utils"
)

const (
	// DefaultBaseURL is the OpenRank graph API base URL
	DefaultBaseURL = "https://graph.cast.k3l.io"

	engagementPath = "/graph/neighbors/engagement/fids"
	rankingsPath   = "/frames/personalized/rankings/fids"

	maxErrorBody = 512
)

// Config holds OpenRank connection settings
type Config struct {
	BaseURL     string
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
	Stats       *ratelimit.Stats
	HTTPClient  *http.Client
	Sleep       func(ctx context.Context, d time.Duration) error
}

// ConfigFromEnv creates a Config from environment variables
func ConfigFromEnv() Config {
	return Config{BaseURL: os.Getenv("FIDCHANNELS_OPENRANK_URL")}
}

// Backend implements backend.FrameSource against OpenRank
type Backend struct {
	client  *ratelimit.Client
	baseURL string
}

// New creates a new OpenRank backend
func New(cfg Config) (*Backend, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid openrank base URL %q: %w", baseURL, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Backend{
		client: ratelimit.NewClient(ratelimit.Config{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			Timeout:     timeout,
			Stats:       cfg.Stats,
			Backend:     "openrank",
			HTTPClient:  cfg.HTTPClient,
			Sleep:       cfg.Sleep,
		}),
		baseURL: baseURL,
	}, nil
}

// Close closes the backend
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// post sends fids as a JSON array and decodes the response envelope into out.
func (b *Backend) post(ctx context.Context, path string, fids []backend.FID, out interface{}) error {
	body, err := json.Marshal(fids)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")

	utils.Debugf("openrank POST %s (%d fids)", path, len(fids))

	resp, err := b.client.Do(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body), header)
	if err != nil {
		var rlErr *ratelimit.RateLimitError
		if errors.As(err, &rlErr) {
			return &backend.UpstreamError{Status: rlErr.StatusCode(), Message: rlErr.Error()}
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &backend.UpstreamError{Status: resp.StatusCode, Message: string(msg)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backend.MalformedError(fmt.Sprintf("decode %s: %v", path, err))
	}
	return nil
}

type engagementResponse struct {
	Result *[]struct {
		FID   backend.FID `json:"fid"`
		Score float64     `json:"score"`
	} `json:"result"`
}

// EngagedFIDs returns the engagement neighbours of fid, most engaged first.
func (b *Backend) EngagedFIDs(ctx context.Context, fid backend.FID) ([]backend.FID, error) {
	var response engagementResponse
	if err := b.post(ctx, engagementPath, []backend.FID{fid}, &response); err != nil {
		return nil, err
	}
	if response.Result == nil {
		return nil, backend.MalformedError("engagement response has no result")
	}

	fids := make([]backend.FID, 0, len(*response.Result))
	for _, n := range *response.Result {
		fids = append(fids, n.FID)
	}
	return fids, nil
}

type rankingsResponse struct {
	Result *[]backend.Frame `json:"result"`
}

// FrameRankings returns frames ranked for the given FIDs, in upstream order.
func (b *Backend) FrameRankings(ctx context.Context, fids []backend.FID) ([]backend.Frame, error) {
	var response rankingsResponse
	if err := b.post(ctx, rankingsPath, fids, &response); err != nil {
		return nil, err
	}
	if response.Result == nil {
		return nil, backend.MalformedError("rankings response has no result")
	}
	return *response.Result, nil
}

// Verify interface compliance at compile time
var _ backend.FrameSource = (*Backend)(nil)

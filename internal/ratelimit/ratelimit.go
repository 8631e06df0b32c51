// Package ratelimit provides HTTP rate limit handling with bounded linear backoff for REST API backends.
package ratelimit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultMaxAttempts is the total number of attempts (first try included) made on 429.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the backoff unit; attempt n waits n*BaseDelay.
	DefaultBaseDelay = 1 * time.Second
)

// Config holds configuration for the rate-limiting HTTP client.
type Config struct {
	// MaxAttempts is the maximum number of requests sent for one call while
	// the upstream keeps answering 429.
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay unit for linear backoff.
	// Default: 1 second
	BaseDelay time.Duration

	// Timeout bounds a single HTTP exchange. Zero means no client timeout;
	// the caller's context still applies.
	Timeout time.Duration

	// Stats is an optional stats tracker for recording rate limit events.
	Stats *Stats

	// Backend name for error messages and logging.
	Backend string

	// HTTPClient overrides the underlying client (tests, custom transports).
	HTTPClient *http.Client

	// Sleep overrides the backoff wait. It must return ctx.Err() when the
	// context ends first.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is an HTTP client that retries rate-limited requests with linear backoff.
type Client struct {
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	stats       *Stats
	backend     string
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new rate-limiting HTTP client with the given configuration.
func NewClient(cfg Config) *Client {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Client{
		httpClient:  httpClient,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		stats:       cfg.Stats,
		backend:     cfg.Backend,
		sleep:       sleep,
	}
}

// Do performs an HTTP request, retrying the same request while the upstream
// answers 429. Any other status is returned to the caller untouched; transport
// errors are returned immediately.
func (c *Client) Do(ctx context.Context, method, url string, body io.Reader, header http.Header) (*http.Response, error) {
	// Read body into buffer so we can re-send on retry
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	for attempt := 1; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		if c.stats != nil {
			c.stats.RecordAttempt()
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Drain so the connection can be reused for the retry
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if c.stats != nil {
			c.stats.RecordRateLimit()
		}

		if attempt >= c.maxAttempts {
			return nil, &RateLimitError{
				Backend:     c.backend,
				Attempt:     attempt,
				MaxAttempts: c.maxAttempts,
			}
		}

		if err := c.sleep(ctx, c.Backoff(attempt)); err != nil {
			return nil, err
		}
	}
}

// Backoff returns the wait after the given (1-based) rate-limited attempt.
func (c *Client) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * c.baseDelay
}

// MaxAttempts returns the configured attempt ceiling.
func (c *Client) MaxAttempts() int {
	return c.maxAttempts
}

// CloseIdleConnections releases pooled connections of the underlying client.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RateLimitError represents an error when rate limit retries are exhausted.
type RateLimitError struct {
	Backend     string
	Attempt     int
	MaxAttempts int
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	backend := e.Backend
	if backend == "" {
		backend = "API"
	}
	return fmt.Sprintf("%s rate limit exceeded after %d attempts (max %d)", backend, e.Attempt, e.MaxAttempts)
}

// StatusCode returns the HTTP status that caused the failure.
func (e *RateLimitError) StatusCode() int {
	return http.StatusTooManyRequests
}

// Observer receives rate limit events, e.g. a metrics collector.
type Observer interface {
	ObserveAttempt(backend string)
	ObserveRateLimit(backend string)
}

// Stats tracks rate limit statistics for a backend.
type Stats struct {
	mu              sync.RWMutex
	backend         string
	attemptCount    int64
	rateLimitCount  int64
	lastRateLimitAt time.Time
	observer        Observer
}

// NewStats creates a new Stats instance. The observer may be nil.
func NewStats(backend string, observer Observer) *Stats {
	return &Stats{backend: backend, observer: observer}
}

// RecordAttempt records one request sent upstream.
func (s *Stats) RecordAttempt() {
	s.mu.Lock()
	s.attemptCount++
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.ObserveAttempt(s.backend)
	}
}

// RecordRateLimit records a rate limit event.
func (s *Stats) RecordRateLimit() {
	s.mu.Lock()
	s.rateLimitCount++
	s.lastRateLimitAt = time.Now()
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.ObserveRateLimit(s.backend)
	}
}

// AttemptCount returns the total number of requests sent.
func (s *Stats) AttemptCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attemptCount
}

// RateLimitCount returns the total number of rate limit events.
func (s *Stats) RateLimitCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rateLimitCount
}

// LastRateLimitTime returns the time of the last rate limit event.
func (s *Stats) LastRateLimitTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRateLimitAt
}

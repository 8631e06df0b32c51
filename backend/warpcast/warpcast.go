// Package warpcast provides an upstream client for the Warpcast channel REST API.
package warpcast

import (
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
	// DefaultBaseURL is the Warpcast API base URL
	DefaultBaseURL = "https://api.warpcast.com"

	// DefaultMaxPages bounds how many cursors FetchAll follows
	DefaultMaxPages = 100

	followingChannelsPath = "/v1/user-following-channels"
	channelMembersPath    = "/fc/channel-members"

	// maxErrorBody limits how much of an error body ends up in UpstreamError
	maxErrorBody = 512
)

// Config holds Warpcast connection settings
type Config struct {
	APIToken    string // Optional bearer token
	BaseURL     string // Override for testing
	MaxPages    int
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
	Stats       *ratelimit.Stats
	HTTPClient  *http.Client
	Sleep       func(ctx context.Context, d time.Duration) error
}

// ConfigFromEnv creates a Config from environment variables
func ConfigFromEnv() Config {
	return Config{
		APIToken: os.Getenv("FIDCHANNELS_WARPCAST_TOKEN"),
		BaseURL:  os.Getenv("FIDCHANNELS_WARPCAST_URL"),
	}
}

// Backend implements backend.Upstream against the Warpcast API
type Backend struct {
	config   Config
	client   *ratelimit.Client
	baseURL  string
	maxPages int
}

// New creates a new Warpcast backend
func New(cfg Config) (*Backend, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid warpcast base URL %q: %w", baseURL, err)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Backend{
		config: cfg,
		client: ratelimit.NewClient(ratelimit.Config{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			Timeout:     timeout,
			Stats:       cfg.Stats,
			Backend:     "warpcast",
			HTTPClient:  cfg.HTTPClient,
			Sleep:       cfg.Sleep,
		}),
		baseURL:  baseURL,
		maxPages: maxPages,
	}, nil
}

// Close closes the backend
func (b *Backend) Close() error {
	if b.client != nil {
		b.client.CloseIdleConnections()
	}
	return nil
}

// get performs a Warpcast API GET with rate limiting and decodes a 2xx body into out.
func (b *Backend) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if b.config.APIToken != "" {
		header.Set("Authorization", "Bearer "+b.config.APIToken)
	}

	utils.Debugf("warpcast GET %s", u)

	resp, err := b.client.Do(ctx, http.MethodGet, u, nil, header)
	if err != nil {
		return classifyError(err)
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

// classifyError turns retry exhaustion into an UpstreamError; other errors pass through.
func classifyError(err error) error {
	var rlErr *ratelimit.RateLimitError
	if errors.As(err, &rlErr) {
		return &backend.UpstreamError{Status: rlErr.StatusCode(), Message: rlErr.Error()}
	}
	return err
}

// =============================================================================
// Channel Operations
// =============================================================================

type channelJSON struct {
	ID            string        `json:"id"`
	URL           string        `json:"url"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	ImageURL      string        `json:"imageUrl"`
	LeadFID       backend.FID   `json:"leadFid"`
	ModeratorFIDs []backend.FID `json:"moderatorFids"`
	CreatedAt     int64         `json:"createdAt"`
	FollowerCount int           `json:"followerCount"`
}

type channelsResponse struct {
	Result *struct {
		Channels *[]channelJSON `json:"channels"`
	} `json:"result"`
	Next *struct {
		Cursor string `json:"cursor"`
	} `json:"next"`
}

// FetchPage fetches one page of channels followed by fid. An empty cursor
// requests the first page.
func (b *Backend) FetchPage(ctx context.Context, fid backend.FID, cursor string) (backend.Page, error) {
	query := url.Values{}
	query.Set("fid", fid.String())
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var response channelsResponse
	if err := b.get(ctx, followingChannelsPath, query, &response); err != nil {
		return backend.Page{}, err
	}

	if response.Result == nil || response.Result.Channels == nil {
		return backend.Page{}, backend.MalformedError("response has no result.channels")
	}

	page := backend.Page{Channels: make([]backend.Channel, len(*response.Result.Channels))}
	for i, c := range *response.Result.Channels {
		page.Channels[i] = backend.Channel{
			ID:            c.ID,
			Name:          c.Name,
			Description:   c.Description,
			FollowerCount: c.FollowerCount,
			CreatedAt:     c.CreatedAt,
			LeadFID:       c.LeadFID,
			ModeratorFIDs: c.ModeratorFIDs,
			ImageURL:      c.ImageURL,
			URL:           c.URL,
		}
	}
	if response.Next != nil {
		page.NextCursor = response.Next.Cursor
	}
	return page, nil
}

// FetchAll follows every cursor until the upstream stops returning one and
// returns the channels of all pages in response order.
func (b *Backend) FetchAll(ctx context.Context, fid backend.FID) ([]backend.Channel, error) {
	var channels []backend.Channel
	cursor := ""

	for pages := 0; ; pages++ {
		if pages >= b.maxPages {
			return nil, fmt.Errorf("%w: fid %s still had a cursor after %d pages", backend.ErrPaginationLimitExceeded, fid, b.maxPages)
		}

		page, err := b.FetchPage(ctx, fid, cursor)
		if err != nil {
			return nil, err
		}
		channels = append(channels, page.Channels...)

		if page.NextCursor == "" {
			utils.Debugf("fetched %d channels for fid %s in %d pages", len(channels), fid, pages+1)
			return channels, nil
		}
		cursor = page.NextCursor
	}
}

// =============================================================================
// Membership Operations
// =============================================================================

type membersResponse struct {
	Result *struct {
		Members *[]struct {
			FID       backend.FID `json:"fid"`
			ChannelID string      `json:"channelId"`
			MemberAt  int64       `json:"memberAt"`
		} `json:"members"`
	} `json:"result"`
}

// ChannelMembers returns the member FIDs of channelID, filtered by fid.
func (b *Backend) ChannelMembers(ctx context.Context, channelID string, fid backend.FID) ([]backend.FID, error) {
	query := url.Values{}
	query.Set("channelId", channelID)
	query.Set("fid", fid.String())

	var response membersResponse
	if err := b.get(ctx, channelMembersPath, query, &response); err != nil {
		return nil, err
	}

	if response.Result == nil || response.Result.Members == nil {
		return nil, backend.MalformedError("response has no result.members")
	}

	fids := make([]backend.FID, len(*response.Result.Members))
	for i, m := range *response.Result.Members {
		fids[i] = m.FID
	}
	return fids, nil
}

// Verify interface compliance at compile time
var _ backend.Upstream = (*Backend)(nil)

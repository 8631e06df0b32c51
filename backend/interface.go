package backend

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FID identifies a subject entity in the Farcaster social graph.
// The zero value means no FID was supplied.
type FID uint64

// String returns the decimal form used in query strings and cache keys.
func (f FID) String() string {
	return strconv.FormatUint(uint64(f), 10)
}

// ParseFID parses a decimal FID. Empty input yields ErrMissingKey.
func ParseFID(s string) (FID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrMissingKey
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &InvalidKeyError{Value: s}
	}
	if n == 0 {
		return 0, ErrMissingKey
	}
	return FID(n), nil
}

// Channel represents a channel followed by a FID
type Channel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	FollowerCount int    `json:"followerCount"`
	CreatedAt     int64  `json:"createdAt"`
	LeadFID       FID    `json:"leadFid"`
	ModeratorFIDs []FID  `json:"moderatorFids,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	URL           string `json:"url,omitempty"`
}

// Page is one page of a cursor-paginated channel listing.
// An empty NextCursor means there are no further pages.
type Page struct {
	Channels   []Channel
	NextCursor string
}

// Frame is a ranked frame returned by the frame rankings service
type Frame struct {
	URL       string  `json:"url"`
	FrameName string  `json:"frameName,omitempty"`
	Score     float64 `json:"score"`
}

// ChannelSource fetches the full channel collection of a FID.
type ChannelSource interface {
	FetchAll(ctx context.Context, fid FID) ([]Channel, error)
}

// MemberSource lists the members of a channel, filtered by FID.
type MemberSource interface {
	ChannelMembers(ctx context.Context, channelID string, fid FID) ([]FID, error)
}

// FrameSource ranks frames by what the engagement neighbourhood of a FID interacts with.
type FrameSource interface {
	EngagedFIDs(ctx context.Context, fid FID) ([]FID, error)
	FrameRankings(ctx context.Context, fids []FID) ([]Frame, error)
}

// Upstream is everything the aggregation layer needs from the remote service
type Upstream interface {
	ChannelSource
	MemberSource
	Close() error
}

// FindChannelByName searches for a channel by name (case-insensitive) in a slice of channels.
// Returns nil if no match is found.
func FindChannelByName(channels []Channel, name string) *Channel {
	for _, c := range channels {
		if strings.EqualFold(c.Name, name) {
			return &c
		}
	}
	return nil
}

// GenerateRequestID generates a unique identifier using UUID v4.
// Used to correlate log lines and analytics events of a single request.
func GenerateRequestID() string {
	return uuid.New().String()
}

type requestIDKey struct{}

// WithRequestID returns a context carrying id
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

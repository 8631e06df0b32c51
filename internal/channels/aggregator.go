// Package channels combines the cached channel listing of a FID with
// per-channel membership.
package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fidchannels/backend"
	"fidchannels/internal/cache"
)

// DefaultConcurrency bounds concurrent membership checks per request.
const DefaultConcurrency = 8

// Sort selects the order of ListWithMembership results.
type Sort int

const (
	// SortNone keeps upstream order.
	SortNone Sort = iota
	// SortMembersFirst puts channels the FID is a member of first.
	SortMembersFirst
	// SortFollowers orders by follower count, highest first.
	SortFollowers
)

// String returns the flag spelling of s.
func (s Sort) String() string {
	switch s {
	case SortMembersFirst:
		return "members"
	case SortFollowers:
		return "followers"
	default:
		return "none"
	}
}

// ParseSort parses a sort name. An empty string means SortNone.
func ParseSort(s string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SortNone, nil
	case "members", "members-first", "membership":
		return SortMembersFirst, nil
	case "followers", "follower-count":
		return SortFollowers, nil
	default:
		return SortNone, fmt.Errorf("unknown sort %q (valid: none, members, followers)", s)
	}
}

// MemberChannel is a channel decorated with the requesting FID's membership.
type MemberChannel struct {
	backend.Channel
	IsMember bool `json:"isMember"`
}

// Options controls one ListWithMembership call.
type Options struct {
	Sort Sort
	// Name keeps only channels whose name contains it, case-insensitively.
	Name string
}

// MembershipChecker is satisfied by *Resolver.
type MembershipChecker interface {
	IsMember(ctx context.Context, fid backend.FID, channelID string) bool
}

// FetchObserver is told about every upstream pagination run. ctx is the
// context of the caller that led the flight.
type FetchObserver func(ctx context.Context, fid backend.FID, elapsed time.Duration, err error)

// Aggregator serves channel listings through the cache and decorates them
// with membership.
type Aggregator struct {
	cache       *cache.Cache
	source      backend.ChannelSource
	resolver    MembershipChecker
	concurrency int
	observer    FetchObserver
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithConcurrency bounds membership fan-out. n <= 0 means unbounded.
func WithConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.concurrency = n
	}
}

// WithFetchObserver sets a hook run after every upstream pagination run.
func WithFetchObserver(fn FetchObserver) AggregatorOption {
	return func(a *Aggregator) {
		a.observer = fn
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(c *cache.Cache, source backend.ChannelSource, resolver MembershipChecker, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		cache:       c,
		source:      source,
		resolver:    resolver,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Channels returns the channels fid follows, from cache while fresh.
// An empty listing is backend.ErrNotFound.
func (a *Aggregator) Channels(ctx context.Context, fid backend.FID) ([]backend.Channel, error) {
	if fid == 0 {
		return nil, backend.ErrMissingKey
	}

	channels, err := a.cache.GetOrFetch(ctx, fid, a.fetch)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, backend.ErrNotFound
	}
	return channels, nil
}

// ListWithMembership returns the channels fid follows, each marked with
// whether fid is a member, ordered by opts.Sort.
func (a *Aggregator) ListWithMembership(ctx context.Context, fid backend.FID, opts Options) ([]MemberChannel, error) {
	channels, err := a.Channels(ctx, fid)
	if err != nil {
		return nil, err
	}

	// Copy so the cached slice is never touched
	out := make([]MemberChannel, 0, len(channels))
	for _, c := range channels {
		if matchesName(c, opts.Name) {
			out = append(out, MemberChannel{Channel: c})
		}
	}
	if len(out) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for i := range out {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out[i].IsMember = a.resolver.IsMember(gctx, fid, out[i].ID)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortChannels(out, opts.Sort)
	return out, nil
}

// SortChannels orders channels in place. Both orderings are stable.
func SortChannels(channels []MemberChannel, s Sort) {
	switch s {
	case SortMembersFirst:
		sort.SliceStable(channels, func(i, j int) bool {
			return channels[i].IsMember && !channels[j].IsMember
		})
	case SortFollowers:
		sort.SliceStable(channels, func(i, j int) bool {
			return channels[i].FollowerCount > channels[j].FollowerCount
		})
	}
}

func (a *Aggregator) fetch(ctx context.Context, fid backend.FID) ([]backend.Channel, error) {
	start := time.Now()
	channels, err := a.source.FetchAll(ctx, fid)
	if a.observer != nil {
		a.observer(ctx, fid, time.Since(start), err)
	}
	return channels, err
}

func matchesName(c backend.Channel, name string) bool {
	if name == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Name), strings.ToLower(name))
}

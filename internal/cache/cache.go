// Package cache provides a TTL cache for the channel collection of each FID.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"fidchannels/backend"
	"fidchannels/internal/utils"
)

// DefaultTTL is how long a fetched collection is served without refetching.
const DefaultTTL = 5 * time.Minute

// Entry is one cached collection. Entries are replaced wholesale, never patched.
type Entry struct {
	Key       backend.FID       `json:"key"`
	Channels  []backend.Channel `json:"channels"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Store persists entries. Put must replace any prior entry for the key atomically.
type Store interface {
	Get(ctx context.Context, key backend.FID) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key backend.FID) error
}

// FetchFunc loads the full collection for a key on a miss.
type FetchFunc func(ctx context.Context, key backend.FID) ([]backend.Channel, error)

// Recorder receives cache outcomes, e.g. a metrics collector.
type Recorder interface {
	Hit()
	Miss()
	Expire()
}

type noopRecorder struct{}

func (noopRecorder) Hit()    {}
func (noopRecorder) Miss()   {}
func (noopRecorder) Expire() {}

// Cache serves fresh entries from its store and coalesces concurrent misses
// for the same key into one fetch.
type Cache struct {
	store    Store
	ttl      atomic.Int64
	now      func() time.Time
	recorder Recorder
	sf       singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates a cache over store. A non-positive ttl uses DefaultTTL.
func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:    store,
		now:      time.Now,
		recorder: noopRecorder{},
	}
	c.ttl.Store(int64(ttl))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration {
	return time.Duration(c.ttl.Load())
}

// SetTTL changes the freshness window. Stored entries are judged by the new
// window from the next lookup on. Non-positive values are ignored.
func (c *Cache) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		c.ttl.Store(int64(ttl))
	}
}

// IsFresh reports whether the entry may still be served.
func (c *Cache) IsFresh(e Entry) bool {
	return c.now().Sub(e.FetchedAt) < c.TTL()
}

// GetOrFetch returns the cached channels for key while fresh. Otherwise it
// runs fetch and stores the result over any stale entry. A failed fetch
// writes nothing.
func (c *Cache) GetOrFetch(ctx context.Context, key backend.FID, fetch FetchFunc) ([]backend.Channel, error) {
	if channels, ok := c.lookup(ctx, key); ok {
		return channels, nil
	}

	for attempt := 0; ; attempt++ {
		ch := c.sf.DoChan(key.String(), func() (interface{}, error) {
			return c.fill(ctx, key, fetch)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The flight may have belonged to a caller that gave up while
				// ours is still live. Join one more flight before failing.
				if attempt == 0 && res.Shared && isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return res.Val.([]backend.Channel), nil
		}
	}
}

// lookup returns a fresh entry. Stale entries are never returned.
func (c *Cache) lookup(ctx context.Context, key backend.FID) ([]backend.Channel, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		utils.Warnf("cache read for fid %s failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !c.IsFresh(entry) {
		// Left in place for the next successful fetch to replace. Deleting
		// here could drop an entry another flight stored after our Get.
		c.recorder.Expire()
		return nil, false
	}
	c.recorder.Hit()
	return entry.Channels, true
}

// fill runs inside the flight. It re-checks the store so that a caller which
// queued behind a just-finished flight does not fetch twice.
func (c *Cache) fill(ctx context.Context, key backend.FID, fetch FetchFunc) ([]backend.Channel, error) {
	if channels, ok := c.lookup(ctx, key); ok {
		return channels, nil
	}

	c.recorder.Miss()
	channels, err := fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	entry := Entry{Key: key, Channels: channels, FetchedAt: c.now()}
	if err := c.store.Put(ctx, entry); err != nil {
		// The fetch succeeded; serve it even if it could not be kept.
		utils.Warnf("cache write for fid %s failed: %v", key, err)
	}
	return channels, nil
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(ctx context.Context, key backend.FID) error {
	return c.store.Delete(ctx, key)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

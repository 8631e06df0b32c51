package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fidchannels/backend"
)

// DefaultRedisPrefix namespaces cache keys in a shared redis.
const DefaultRedisPrefix = "fidchannels:channels:"

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
	// Expiry is the redis-side TTL; entries are also checked against FetchedAt.
	Expiry time.Duration
}

// RedisStore keeps entries as JSON values so several processes share one cache.
// SET replaces the whole value, so entry replacement is atomic per key.
type RedisStore struct {
	cli    redis.Cmdable
	closer func() error
	prefix string
	expiry time.Duration
}

// NewRedisStore connects to redis with cfg.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: missing addr")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	cli := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	s := NewRedisStoreWithClient(cli, cfg.Prefix, cfg.Expiry)
	s.closer = cli.Close
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(cli redis.Cmdable, prefix string, expiry time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{cli: cli, prefix: prefix, expiry: expiry, closer: func() error { return nil }}
}

// Key returns the redis key used for fid.
func (s *RedisStore) Key(fid backend.FID) string {
	return s.prefix + fid.String()
}

// Get returns the entry for key.
func (s *RedisStore) Get(ctx context.Context, key backend.FID) (Entry, bool, error) {
	raw, err := s.cli.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Put replaces the entry for entry.Key.
func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	raw, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return s.cli.Set(ctx, s.Key(entry.Key), raw, s.expiry).Err()
}

// Delete removes the entry for key.
func (s *RedisStore) Delete(ctx context.Context, key backend.FID) error {
	return s.cli.Del(ctx, s.Key(key)).Err()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx).Err()
}

// Close closes the connection if the store opened it.
func (s *RedisStore) Close() error {
	return s.closer()
}

func encodeEntry(e Entry) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry for fid %s: %w", e.Key, err)
	}
	return raw, nil
}

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, nil
}

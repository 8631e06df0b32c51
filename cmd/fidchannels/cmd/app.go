package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"fidchannels/backend"
	"fidchannels/backend/openrank"
	"fidchannels/backend/warpcast"
	"fidchannels/internal/analytics"
	"fidchannels/internal/cache"
	"fidchannels/internal/channels"
	"fidchannels/internal/config"
	"fidchannels/internal/credentials"
	"fidchannels/internal/frames"
	"fidchannels/internal/metrics"
	"fidchannels/internal/ratelimit"
	"fidchannels/internal/utils"
)

// app holds everything one invocation wires together
type app struct {
	conf       *config.Config
	metrics    *metrics.Collectors
	warpcast   *warpcast.Backend
	openrank   *openrank.Backend
	redis      *cache.RedisStore
	cache      *cache.Cache
	breaker    *channels.Breaker
	resolver   *channels.Resolver
	aggregator *channels.Aggregator
	frames     *trackedFrames
	tracker    *analytics.Tracker
	requestID  string
}

// configPath returns the config file named by --config, cfg, or the XDG default
func configPath(cmd *cobra.Command, cfg *Config) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = cfg.ConfigPath
	}
	if path == "" {
		path = filepath.Join(config.GetConfigDir(), "config.yaml")
	}
	return path
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(cmd *cobra.Command, cfg *Config) (*config.Config, error) {
	conf, err := config.Load(configPath(cmd, cfg))
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	format := cfg.OutputFormat
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		format = "json"
	}
	conf.ApplyFlags(verbose || cfg.Verbose, format)
	if cfg.AnalyticsPath != "" {
		conf.Analytics.Path = cfg.AnalyticsPath
	}

	if err := conf.Validate(); err != nil {
		return nil, utils.WrapWithSuggestion(err, "Fix the config file or delete it to regenerate the defaults")
	}
	utils.SetVerboseMode(conf.Logging.Verbose)
	return conf, nil
}

func credentialManager(cfg *Config) *credentials.Manager {
	if cfg.Keyring != nil {
		return credentials.NewManager(credentials.WithKeyring(cfg.Keyring))
	}
	return credentials.NewManager()
}

// openApp builds the backends, cache and services from conf
func openApp(ctx context.Context, conf *config.Config, cfg *Config) (*app, error) {
	a := &app{
		conf:      conf,
		metrics:   metrics.New(),
		requestID: backend.GenerateRequestID(),
	}

	tracker, err := analytics.NewTracker(conf.GetAnalyticsPath(), analytics.IsEnabledFromEnv(conf.IsAnalyticsEnabled()))
	if err != nil {
		// Analytics is best effort; commands still run without it.
		utils.Warnf("analytics disabled: %v", err)
	}
	a.tracker = tracker

	wcfg := warpcast.ConfigFromEnv()
	if conf.Warpcast.BaseURL != "" {
		wcfg.BaseURL = conf.Warpcast.BaseURL
	}
	wcfg.APIToken = credentialManager(cfg).Token(ctx, "warpcast")
	wcfg.MaxPages = conf.GetMaxPages()
	wcfg.MaxAttempts = conf.GetMaxAttempts()
	wcfg.BaseDelay = conf.GetBaseDelay()
	wcfg.Timeout = conf.GetWarpcastTimeout()
	wcfg.Stats = ratelimit.NewStats("warpcast", a.metrics)
	wcfg.Sleep = cfg.Sleep
	if a.warpcast, err = warpcast.New(wcfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	ocfg := openrank.ConfigFromEnv()
	if conf.OpenRank.BaseURL != "" {
		ocfg.BaseURL = conf.OpenRank.BaseURL
	}
	ocfg.MaxAttempts = conf.GetMaxAttempts()
	ocfg.BaseDelay = conf.GetBaseDelay()
	ocfg.Timeout = conf.GetWarpcastTimeout()
	ocfg.Stats = ratelimit.NewStats("openrank", a.metrics)
	ocfg.Sleep = cfg.Sleep
	if a.openrank, err = openrank.New(ocfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	var store cache.Store = cache.NewMemoryStore()
	if conf.IsRedisCache() {
		a.redis, err = cache.NewRedisStore(cache.RedisConfig{
			Addr:     conf.Cache.Redis.Addr,
			Password: conf.Cache.Redis.Password,
			DB:       conf.Cache.Redis.DB,
			Expiry:   conf.GetCacheTTLDuration(),
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if err := a.redis.Ping(ctx); err != nil {
			_ = a.Close()
			return nil, utils.WrapWithSuggestion(fmt.Errorf("redis cache unreachable: %w", err),
				"Check cache.redis.addr or switch cache.backend to 'memory'")
		}
		store = a.redis
	}
	a.cache = cache.New(store, conf.GetCacheTTLDuration(), cache.WithRecorder(a.metrics))

	a.breaker = channels.NewBreaker(conf.GetBreakerThreshold(), conf.GetBreakerCooldown())
	a.resolver = channels.NewResolver(a.warpcast,
		channels.WithBreaker(a.breaker),
		channels.WithMembershipRecorder(a.metrics),
	)
	a.aggregator = channels.NewAggregator(a.cache, a.warpcast, a.resolver,
		channels.WithConcurrency(conf.GetMembershipConcurrency()),
		channels.WithFetchObserver(a.observeFetch),
	)
	a.frames = &trackedFrames{
		service: frames.New(a.openrank, frames.DefaultNeighbours),
		tracker: a.tracker,
	}

	return a, nil
}

// ctx returns a context carrying the invocation request id
func (a *app) ctx(parent context.Context) context.Context {
	return backend.WithRequestID(parent, a.requestID)
}

func (a *app) observeFetch(ctx context.Context, fid backend.FID, elapsed time.Duration, err error) {
	a.metrics.FetchSeconds(elapsed.Seconds())
	a.tracker.TrackOperation(analytics.OpFetchChannels, "warpcast", fid, backend.RequestIDFromContext(ctx), elapsed, err)
	if err != nil {
		utils.Debugf("fetch channels for fid %s failed after %s: %v", fid, elapsed, err)
		return
	}
	utils.Debugf("fetched channels for fid %s in %s", fid, elapsed)
}

// reload applies the live-tunable settings of the config file at path.
// Everything else needs a restart.
func (a *app) reload(path string, forceVerbose bool) {
	conf, err := config.Load(path)
	if err == nil {
		err = conf.Validate()
	}
	if err != nil {
		utils.Warnf("config reload ignored: %v", err)
		return
	}

	ttl := conf.GetCacheTTLDuration()
	if ttl != a.cache.TTL() {
		a.cache.SetTTL(ttl)
		if a.redis != nil {
			utils.Warnf("redis key expiry keeps its old value until restart")
		}
	}
	utils.SetVerboseMode(conf.Logging.Verbose || forceVerbose)
	utils.Infof("config reloaded from %s (cache ttl %s)", path, ttl)
}

// Close releases every resource openApp acquired
func (a *app) Close() error {
	var errs []error
	if a.warpcast != nil {
		errs = append(errs, a.warpcast.Close())
	}
	if a.openrank != nil {
		errs = append(errs, a.openrank.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	return errors.Join(errs...)
}

// trackedFrames records every popular-frames lookup in analytics
type trackedFrames struct {
	service *frames.Service
	tracker *analytics.Tracker
}

func (t *trackedFrames) Popular(ctx context.Context, fid backend.FID) ([]backend.Frame, error) {
	start := time.Now()
	list, err := t.service.Popular(ctx, fid)
	t.tracker.TrackOperation(analytics.OpFrames, "openrank", fid, backend.RequestIDFromContext(ctx), time.Since(start), err)
	return list, err
}

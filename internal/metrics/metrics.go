// Package metrics exposes prometheus collectors for upstream calls and the channel cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups every metric the service records. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	registry *prometheus.Registry

	UpstreamRequests   *prometheus.CounterVec
	UpstreamRateLimits *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheExpired       prometheus.Counter
	MembershipChecks   *prometheus.CounterVec
	FetchDuration      prometheus.Histogram
}

// New creates collectors registered on a private registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fidchannels_upstream_requests_total",
			Help: "Total HTTP requests sent upstream, retries included.",
		}, []string{"backend"}),
		UpstreamRateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fidchannels_upstream_rate_limited_total",
			Help: "Total 429 responses received from upstream.",
		}, []string{"backend"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fidchannels_cache_hits_total",
			Help: "Channel lookups served from a fresh cache entry.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fidchannels_cache_misses_total",
			Help: "Channel lookups that required a full pagination run.",
		}),
		CacheExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fidchannels_cache_expired_total",
			Help: "Stale cache entries found at read.",
		}),
		MembershipChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fidchannels_membership_checks_total",
			Help: "Membership checks by outcome (member, not_member, failed, skipped).",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fidchannels_fetch_duration_seconds",
			Help:    "Duration of full channel pagination runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		c.UpstreamRequests, c.UpstreamRateLimits,
		c.CacheHits, c.CacheMisses, c.CacheExpired,
		c.MembershipChecks, c.FetchDuration,
	)
	return c
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveAttempt implements ratelimit.Observer.
func (c *Collectors) ObserveAttempt(backend string) {
	if c == nil {
		return
	}
	c.UpstreamRequests.WithLabelValues(backend).Inc()
}

// ObserveRateLimit implements ratelimit.Observer.
func (c *Collectors) ObserveRateLimit(backend string) {
	if c == nil {
		return
	}
	c.UpstreamRateLimits.WithLabelValues(backend).Inc()
}

// Hit records a cache hit.
func (c *Collectors) Hit() {
	if c == nil {
		return
	}
	c.CacheHits.Inc()
}

// Miss records a cache miss.
func (c *Collectors) Miss() {
	if c == nil {
		return
	}
	c.CacheMisses.Inc()
}

// Expire records a stale entry found at read.
func (c *Collectors) Expire() {
	if c == nil {
		return
	}
	c.CacheExpired.Inc()
}

// Membership records one membership check outcome.
func (c *Collectors) Membership(outcome string) {
	if c == nil {
		return
	}
	c.MembershipChecks.WithLabelValues(outcome).Inc()
}

// FetchSeconds records the duration of one pagination run.
func (c *Collectors) FetchSeconds(seconds float64) {
	if c == nil {
		return
	}
	c.FetchDuration.Observe(seconds)
}

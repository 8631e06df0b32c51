package channels

import (
	"sync"
	"time"
)

// DefaultBreakerThreshold is the number of consecutive membership failures
// before the breaker opens.
const DefaultBreakerThreshold = 5

// DefaultBreakerCooldown is how long the breaker stays open before a probe.
const DefaultBreakerCooldown = 30 * time.Second

// BreakerState represents the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed is the normal state - calls are allowed.
	BreakerClosed BreakerState = iota
	// BreakerOpen means the membership endpoint is failing - calls are skipped.
	BreakerOpen
	// BreakerHalfOpen means the cooldown expired - one probe call is allowed.
	BreakerHalfOpen
)

// String returns the string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops membership fan-out from hammering an upstream that keeps
// failing. Skipped calls resolve to non-membership like any other failure.
type Breaker struct {
	mu           sync.Mutex
	threshold    int           // consecutive failures to open
	cooldown     time.Duration // time to wait before half-open probe
	failureCount int           // current consecutive failures
	state        BreakerState
	openedAt     time.Time
	probing      bool // a half-open probe is in flight
	now          func() time.Time
}

// NewBreaker creates a Breaker. Non-positive values use the defaults.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     BreakerClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call should go upstream.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	switch b.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = BreakerClosed
	b.probing = false
}

// RecordFailure counts a failure. A failed probe reopens the breaker at once.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	if b.state == BreakerHalfOpen || b.failureCount >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
	b.probing = false
}

// Release gives back a half-open probe whose outcome says nothing about the
// upstream, e.g. because the caller went away. The next call probes again.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// advance moves open to half-open once the cooldown has passed. Caller holds mu.
func (b *Breaker) advance() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = BreakerHalfOpen
		b.probing = false
	}
}

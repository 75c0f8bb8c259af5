// Package resilience provides failover across decision policy backends.
//
// The central type is [FallbackPolicy], which chains a primary policy
// with zero or more fallbacks. Each backend sits behind its own
// [Breaker], a three-state circuit breaker (closed → open → half-open),
// so a backend that keeps failing is bypassed instead of slowing every
// decision down.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker rejects
// calls outright.
var ErrBreakerOpen = errors.New("resilience: breaker open")

const (
	stateClosed = iota
	stateOpen
	stateHalfOpen
)

// BreakerOption customises a [Breaker] created by [NewBreaker].
type BreakerOption func(*Breaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
// Default: 5.
func WithMaxFailures(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = n
		}
	}
}

// WithResetTimeout sets how long a tripped breaker rejects calls before
// probing again. Default: 30s.
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

// WithProbeBudget sets how many successful probe calls close a
// half-open breaker. Default: 3.
func WithProbeBudget(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.probeBudget = n
		}
	}
}

// Breaker is a three-state circuit breaker. In the closed state calls
// pass through and consecutive failures are counted; once the count
// reaches the limit the breaker opens and rejects calls until the reset
// timeout elapses. It then admits a bounded number of probe calls: one
// probe failure re-opens it, enough probe successes close it again.
//
// The zero value is NOT usable; create instances with [NewBreaker].
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeBudget  int

	mu       sync.Mutex
	state    int
	failures int
	openedAt time.Time
	probes   int
}

// NewBreaker creates a closed breaker. The name only appears in log lines.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		probeBudget:  3,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn if the breaker admits the call and feeds the outcome back
// into the failure accounting. While the breaker is open (or its probe
// budget is spent) fn is not called and [ErrBreakerOpen] is returned.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if time.Since(b.openedAt) < b.resetTimeout {
			return ErrBreakerOpen
		}
		b.state = stateHalfOpen
		b.probes = 0
		slog.Info("breaker half-open, probing", "breaker", b.name)
	case stateHalfOpen:
		if b.probes >= b.probeBudget {
			return ErrBreakerOpen
		}
	}
	if b.state == stateHalfOpen {
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.openedAt = time.Now()
		// Any probe failure re-opens immediately; in the closed state
		// the breaker only trips once the limit is reached.
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			if b.state != stateOpen {
				slog.Warn("breaker opened", "breaker", b.name, "failures", b.failures)
			}
			b.state = stateOpen
			b.failures = b.maxFailures
		}
		return
	}

	switch b.state {
	case stateHalfOpen:
		if b.probes >= b.probeBudget {
			b.state = stateClosed
			b.failures = 0
			b.probes = 0
			slog.Info("breaker closed after successful probes", "breaker", b.name)
		}
	default:
		b.failures = 0
	}
}

// Open reports whether the breaker currently rejects calls. A breaker
// whose reset timeout has elapsed counts as not open: the next call
// will be admitted as a probe.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.openedAt) < b.resetTimeout
}

// Reset forces the breaker back to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failures = 0
	b.probes = 0
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/arithmos/pkg/policy"
)

// ErrAllBackendsFailed is returned by [FallbackPolicy.Decide] when
// every backend either failed or had an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all policy backends failed")

// backend pairs a policy with its dedicated breaker.
type backend struct {
	name    string
	policy  policy.Policy
	breaker *Breaker
}

// FallbackPolicy implements [policy.Policy] with automatic failover.
// Backends are tried in registration order; one with an open breaker is
// skipped without being called.
type FallbackPolicy struct {
	backends    []backend
	breakerOpts []BreakerOption
}

var _ policy.Policy = (*FallbackPolicy)(nil)

// NewFallbackPolicy creates a chain with primary as the preferred
// backend. The breaker options apply to every backend's breaker,
// including those added later via [FallbackPolicy.AddFallback].
func NewFallbackPolicy(name string, primary policy.Policy, opts ...BreakerOption) *FallbackPolicy {
	f := &FallbackPolicy{breakerOpts: opts}
	f.AddFallback(name, primary)
	return f
}

// AddFallback appends a backend to the end of the chain.
func (f *FallbackPolicy) AddFallback(name string, p policy.Policy) {
	f.backends = append(f.backends, backend{
		name:    name,
		policy:  p,
		breaker: NewBreaker(name, f.breakerOpts...),
	})
}

// Decide asks the first healthy backend for a decision. Backend errors
// feed their breaker and trigger the next backend in the chain; a
// cancelled context stops the chain immediately. When no backend
// answers, the last error is wrapped in [ErrAllBackendsFailed].
func (f *FallbackPolicy) Decide(ctx context.Context, req policy.Request) (*policy.Decision, error) {
	var lastErr error
	for i := range f.backends {
		be := &f.backends[i]

		var decision *policy.Decision
		err := be.breaker.Do(func() error {
			var derr error
			decision, derr = be.policy.Decide(ctx, req)
			return derr
		})
		if err == nil {
			return decision, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping policy backend, breaker open", "backend", be.name)
		} else {
			slog.Warn("policy backend failed, trying next", "backend", be.name, "err", err)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

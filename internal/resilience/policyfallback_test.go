package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/arithmos/internal/resilience"
	"github.com/MrWong99/arithmos/pkg/policy"
	policymock "github.com/MrWong99/arithmos/pkg/policy/mock"
)

func TestFallbackPolicyPrimaryHealthy(t *testing.T) {
	t.Parallel()
	primary := &policymock.Policy{DecideFn: func(context.Context, policy.Request) (*policy.Decision, error) {
		return &policy.Decision{Content: "primary"}, nil
	}}
	fallback := &policymock.Policy{}

	f := resilience.NewFallbackPolicy("primary", primary)
	f.AddFallback("fallback", fallback)

	d, err := f.Decide(context.Background(), policy.Request{})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Content != "primary" {
		t.Errorf("content = %q, want primary", d.Content)
	}
	if fallback.CallCount() != 0 {
		t.Errorf("fallback consulted %d times, want 0", fallback.CallCount())
	}
}

func TestFallbackPolicyFailsOver(t *testing.T) {
	t.Parallel()
	primary := &policymock.Policy{DecideErr: errors.New("quota exceeded")}
	fallback := &policymock.Policy{DecideFn: func(context.Context, policy.Request) (*policy.Decision, error) {
		return &policy.Decision{Content: "fallback"}, nil
	}}

	f := resilience.NewFallbackPolicy("primary", primary)
	f.AddFallback("fallback", fallback)

	d, err := f.Decide(context.Background(), policy.Request{})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Content != "fallback" {
		t.Errorf("content = %q, want fallback", d.Content)
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary consulted %d times, want 1", primary.CallCount())
	}
}

func TestFallbackPolicySkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	primary := &policymock.Policy{DecideErr: errors.New("down")}
	fallback := &policymock.Policy{DecideFn: func(context.Context, policy.Request) (*policy.Decision, error) {
		return &policy.Decision{Content: "fallback"}, nil
	}}

	f := resilience.NewFallbackPolicy("primary", primary,
		resilience.WithMaxFailures(1),
		resilience.WithResetTimeout(time.Minute),
	)
	f.AddFallback("fallback", fallback)

	for range 3 {
		if _, err := f.Decide(context.Background(), policy.Request{}); err != nil {
			t.Fatalf("Decide: %v", err)
		}
	}
	// The first call trips the primary's breaker; later calls skip it.
	if got := primary.CallCount(); got != 1 {
		t.Errorf("primary consulted %d times, want 1", got)
	}
	if got := fallback.CallCount(); got != 3 {
		t.Errorf("fallback consulted %d times, want 3", got)
	}
}

func TestFallbackPolicyAllBackendsFail(t *testing.T) {
	t.Parallel()
	f := resilience.NewFallbackPolicy("primary", &policymock.Policy{DecideErr: errors.New("down")})
	f.AddFallback("fallback", &policymock.Policy{DecideErr: errors.New("also down")})

	_, err := f.Decide(context.Background(), policy.Request{})
	if !errors.Is(err, resilience.ErrAllBackendsFailed) {
		t.Fatalf("expected ErrAllBackendsFailed, got %v", err)
	}
}

func TestFallbackPolicyStopsOnCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	primary := &policymock.Policy{DecideFn: func(context.Context, policy.Request) (*policy.Decision, error) {
		cancel()
		return nil, context.Canceled
	}}
	fallback := &policymock.Policy{}

	f := resilience.NewFallbackPolicy("primary", primary)
	f.AddFallback("fallback", fallback)

	_, err := f.Decide(ctx, policy.Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if fallback.CallCount() != 0 {
		t.Errorf("fallback consulted %d times after cancellation, want 0", fallback.CallCount())
	}
}

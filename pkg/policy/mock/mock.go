// Package mock provides an in-memory test double for the [policy.Policy]
// interface.
//
// [Policy] plays back a scripted sequence of decisions and records every
// request for assertion in tests. It is safe for concurrent use via an
// internal [sync.Mutex].
//
// Typical usage:
//
//	p := &mock.Policy{}
//	p.Script(
//	    &policy.Decision{ToolCalls: []types.ToolCall{{ID: "1", Name: "add", Arguments: `{"a":2,"b":3}`}}},
//	    &policy.Decision{Content: "5"},
//	)
//
//	// inject p into the system under test …
//
//	if got := p.CallCount(); got != 2 {
//	    t.Errorf("expected 2 Decide calls, got %d", got)
//	}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/arithmos/pkg/policy"
)

// Policy is a configurable test double for [policy.Policy].
type Policy struct {
	mu sync.Mutex

	// requests records every Decide request in order.
	requests []policy.Request

	// script is the remaining queue of decisions to play back.
	script []*policy.Decision

	// DecideErr is returned by [Policy.Decide] when non-nil, before the
	// script is consulted.
	DecideErr error

	// DecideFn, when non-nil, fully overrides Decide's behaviour.
	DecideFn func(ctx context.Context, req policy.Request) (*policy.Decision, error)

	// Loop, when true, makes an exhausted script wrap around instead of
	// failing. Useful for loop-limit tests that need an endlessly
	// tool-hungry policy.
	Loop bool

	// played counts how many decisions have been handed out.
	played int
}

// Compile-time check: Policy must implement policy.Policy.
var _ policy.Policy = (*Policy)(nil)

// Script replaces the playback queue.
func (p *Policy) Script(decisions ...*policy.Decision) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = decisions
	p.played = 0
}

// Decide implements policy.Policy. It records req and returns the next
// scripted decision. An exhausted script returns an error unless [Policy.Loop]
// is set.
func (p *Policy) Decide(ctx context.Context, req policy.Request) (*policy.Decision, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	fn := p.DecideFn
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DecideErr != nil {
		return nil, p.DecideErr
	}
	if len(p.script) == 0 {
		return nil, fmt.Errorf("mock policy: no scripted decisions")
	}

	idx := p.played
	if idx >= len(p.script) {
		if !p.Loop {
			return nil, fmt.Errorf("mock policy: script exhausted after %d decisions", len(p.script))
		}
		idx = p.played % len(p.script)
	}
	p.played++
	return p.script[idx], nil
}

// Requests returns a copy of all recorded Decide requests.
func (p *Policy) Requests() []policy.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]policy.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// CallCount returns how many times Decide was invoked.
func (p *Policy) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

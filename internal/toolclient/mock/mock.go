// Package mock provides an in-memory test double for the
// [toolclient.Invoker] interface.
//
// [Client] records every method call for assertion in tests and exposes
// exported fields that control what the mock returns. It is safe for
// concurrent use via an internal [sync.Mutex].
//
// Typical usage:
//
//	c := &mock.Client{}
//	c.ToolsResult = []toolclient.CallableTool{{Namespace: "math", Definition: types.ToolDefinition{Name: "add"}}}
//	c.InvokeResults = map[string]types.ToolCallResult{"add": types.Success("5")}
//
//	// inject c into the system under test …
//
//	if got := c.CallCount("Invoke"); got != 1 {
//	    t.Errorf("expected 1 Invoke call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/arithmos/internal/toolclient"
	"github.com/MrWong99/arithmos/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Client is a configurable test double for [toolclient.Invoker].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to nil / zero values.
type Client struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// ──── Tools ────────────────────────────────────────────────────────────

	// ToolsResult is returned by [Client.Tools]. When nil, Tools returns an
	// empty non-nil slice.
	ToolsResult []toolclient.CallableTool

	// ──── Invoke ───────────────────────────────────────────────────────────

	// InvokeResults maps a tool name to the result [Client.Invoke] returns
	// for it. Names not present fall back to InvokeResult.
	InvokeResults map[string]types.ToolCallResult

	// InvokeResult is the default result for tool names absent from
	// InvokeResults. The zero value is an empty success.
	InvokeResult types.ToolCallResult

	// InvokeFn, when non-nil, fully overrides Invoke's behaviour. Useful for
	// injecting latency or context-sensitive results.
	InvokeFn func(ctx context.Context, name string, args map[string]any) types.ToolCallResult

	// ──── Close ────────────────────────────────────────────────────────────

	// CloseErr is returned by [Client.Close] when non-nil.
	CloseErr error
}

// Compile-time check: Client must implement toolclient.Invoker.
var _ toolclient.Invoker = (*Client)(nil)

// record appends a call entry under the lock.
func (c *Client) record(method string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded method invocations.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (c *Client) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// Tools implements [toolclient.Invoker].
func (c *Client) Tools() []toolclient.CallableTool {
	c.record("Tools")
	if c.ToolsResult == nil {
		return []toolclient.CallableTool{}
	}
	out := make([]toolclient.CallableTool, len(c.ToolsResult))
	copy(out, c.ToolsResult)
	return out
}

// Invoke implements [toolclient.Invoker].
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) types.ToolCallResult {
	c.record("Invoke", name, args)
	if c.InvokeFn != nil {
		return c.InvokeFn(ctx, name, args)
	}
	if res, ok := c.InvokeResults[name]; ok {
		return res
	}
	return c.InvokeResult
}

// Close implements [toolclient.Invoker].
func (c *Client) Close() error {
	c.record("Close")
	return c.CloseErr
}

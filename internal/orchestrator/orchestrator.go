// Package orchestrator implements the Deciding/Acting control loop at the
// heart of Arithmos.
//
// One run owns one append-only conversation, seeded with a single user
// message. Deciding passes the conversation to the [policy.Policy]; an
// answer without tool calls terminates the run, anything else transitions
// to Acting. Acting executes the requested calls through the
// [toolclient.Invoker] — concurrently, with result order restored to match
// request order — appends the results and transitions back to Deciding.
//
// Tool faults never abort a run: they travel back to the policy as
// tool-result messages, and the policy chooses whether to retry, rephrase,
// or give up. Only policy errors, cancellation, and the step limit
// terminate a run with a Go error.
//
// Runs are independent: distinct conversations may execute fully in
// parallel against one Orchestrator.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/arithmos/internal/observe"
	"github.com/MrWong99/arithmos/internal/toolclient"
	"github.com/MrWong99/arithmos/pkg/policy"
	"github.com/MrWong99/arithmos/pkg/types"
)

// ErrLoopLimitExceeded is returned by [Orchestrator.RunQuery] when the
// policy keeps requesting tool calls past the configured step limit. It
// guards against adversarial or buggy policies that never conclude.
var ErrLoopLimitExceeded = errors.New("orchestrator: loop limit exceeded")

const (
	// defaultMaxSteps bounds the number of Deciding steps per run.
	defaultMaxSteps = 10

	// defaultToolTimeout bounds a single tool invocation.
	defaultToolTimeout = 30 * time.Second
)

// Orchestrator drives the tool-use loop for any number of concurrent runs.
//
// The zero value is NOT usable; create instances with [New].
type Orchestrator struct {
	policy  policy.Policy
	tools   toolclient.Invoker
	metrics *observe.Metrics

	maxSteps     int
	toolTimeout  time.Duration
	systemPrompt string
	temperature  *float64
	maxTokens    int
	policyName   string
}

// Option customises an [Orchestrator] created by [New].
type Option func(*Orchestrator)

// WithMaxSteps sets how many Deciding steps a run may take before failing
// with [ErrLoopLimitExceeded]. Values < 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxSteps = n
		}
	}
}

// WithToolTimeout bounds each individual tool invocation. Values <= 0 are
// ignored.
func WithToolTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.toolTimeout = d
		}
	}
}

// WithSystemPrompt sets the instruction passed to the policy ahead of every
// conversation.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithTemperature sets the sampling temperature for model-backed policies.
// Unset, the backend default applies; zero is a valid explicit setting.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) { o.temperature = &t }
}

// WithMaxTokens caps response generation for model-backed policies.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) { o.maxTokens = n }
}

// WithPolicyName labels the policy in metrics and logs, e.g. "openai".
func WithPolicyName(name string) Option {
	return func(o *Orchestrator) { o.policyName = name }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an Orchestrator around a policy and a tool surface.
func New(p policy.Policy, tools toolclient.Invoker, opts ...Option) (*Orchestrator, error) {
	if p == nil {
		return nil, fmt.Errorf("orchestrator: policy must not be nil")
	}
	if tools == nil {
		return nil, fmt.Errorf("orchestrator: tool client must not be nil")
	}

	o := &Orchestrator{
		policy:      p,
		tools:       tools,
		maxSteps:    defaultMaxSteps,
		toolTimeout: defaultToolTimeout,
		policyName:  "policy",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// RunQuery executes one full Deciding/Acting run for userText and returns
// the policy's final answer.
//
// Errors are limited to policy failures, context cancellation, and
// [ErrLoopLimitExceeded]; tool faults are data inside the run, not errors
// out of it.
func (o *Orchestrator) RunQuery(ctx context.Context, userText string) (string, error) {
	if userText == "" {
		return "", fmt.Errorf("orchestrator: query must not be empty")
	}

	ctx, span := observe.StartSpan(ctx, "run")
	defer span.End()

	o.metrics.ActiveRuns.Add(ctx, 1)
	defer o.metrics.ActiveRuns.Add(ctx, -1)
	runStart := time.Now()
	defer func() {
		o.metrics.RunDuration.Record(ctx, time.Since(runStart).Seconds())
	}()

	defs := o.definitions()
	state := []types.Message{types.UserMessage(userText)}
	log := observe.Logger(ctx)

	for step := 0; step < o.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		decision, err := o.decide(ctx, state, defs)
		if err != nil {
			return "", err
		}

		if len(decision.ToolCalls) == 0 {
			log.Info("run finished",
				"steps", step+1,
				"duration", time.Since(runStart),
			)
			return decision.Content, nil
		}

		state = append(state, types.AssistantMessage(decision.Content, decision.ToolCalls))

		results, err := o.act(ctx, decision.ToolCalls)
		if err != nil {
			return "", err
		}
		for i, call := range decision.ToolCalls {
			state = append(state, types.ToolResultMessage(call.ID, results[i]))
		}
	}

	return "", fmt.Errorf("%w: policy still requesting tools after %d steps", ErrLoopLimitExceeded, o.maxSteps)
}

// decide performs one Deciding step.
func (o *Orchestrator) decide(ctx context.Context, state []types.Message, defs []types.ToolDefinition) (*policy.Decision, error) {
	ctx, span := observe.StartSpan(ctx, "decide")
	defer span.End()
	start := time.Now()

	decision, err := o.policy.Decide(ctx, policy.Request{
		Messages:     state,
		Tools:        defs,
		SystemPrompt: o.systemPrompt,
		Temperature:  o.temperature,
		MaxTokens:    o.maxTokens,
	})

	o.metrics.PolicyDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordPolicyRequest(ctx, o.policyName, "error")
		o.metrics.RecordPolicyError(ctx, o.policyName)
		return nil, fmt.Errorf("orchestrator: policy decision failed: %w", err)
	}
	o.metrics.RecordPolicyRequest(ctx, o.policyName, "ok")
	if decision == nil {
		return nil, fmt.Errorf("orchestrator: policy returned a nil decision")
	}
	return decision, nil
}

// act performs one Acting step: every requested call is dispatched
// concurrently, and the result slice is indexed by request position so
// append order always equals request order regardless of completion order.
func (o *Orchestrator) act(ctx context.Context, calls []types.ToolCall) ([]types.ToolCallResult, error) {
	ctx, span := observe.StartSpan(ctx, "act")
	defer span.End()

	results := make([]types.ToolCallResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)

	for i, call := range calls {
		g.Go(func() error {
			results[i] = o.invokeOne(gctx, call)
			// A cancelled run stops dispatching; a failed tool does not.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// invokeOne executes a single requested call under the per-tool timeout.
// Malformed argument JSON from the policy is reported back to it as an
// invalid_argument failure rather than aborting the run.
func (o *Orchestrator) invokeOne(ctx context.Context, call types.ToolCall) types.ToolCallResult {
	args, err := decodeCallArgs(call.Arguments)
	if err != nil {
		return types.Failure(types.ErrInvalidArgument,
			fmt.Sprintf("tool %q: arguments are not a JSON object: %v", call.Name, err))
	}

	ctx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()
	return o.tools.Invoke(ctx, call.Name, args)
}

// definitions projects the discovered catalogue into the form the policy
// plans against.
func (o *Orchestrator) definitions() []types.ToolDefinition {
	catalog := o.tools.Tools()
	defs := make([]types.ToolDefinition, 0, len(catalog))
	for _, tool := range catalog {
		defs = append(defs, tool.Definition)
	}
	return defs
}

// decodeCallArgs parses the policy's JSON-encoded arguments. Empty strings
// and "null" mean a parameter-less call.
func decodeCallArgs(raw string) (map[string]any, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// Package app wires all arithmos subsystems into a running client
// application.
//
// The App struct owns the full lifecycle: New connects the tool
// namespaces and constructs the policy and orchestration loop,
// RunQuery answers a single query, and Shutdown tears everything down
// in order.
//
// For testing, inject doubles via functional options (WithPolicy,
// WithInvoker). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/arithmos/internal/config"
	"github.com/MrWong99/arithmos/internal/observe"
	"github.com/MrWong99/arithmos/internal/orchestrator"
	"github.com/MrWong99/arithmos/internal/resilience"
	"github.com/MrWong99/arithmos/internal/toolclient"
	"github.com/MrWong99/arithmos/pkg/policy"
)

// App owns the tool client, the decision policy and the orchestration
// loop for one configured deployment.
type App struct {
	cfg *config.Config

	policy  policy.Policy
	tools   toolclient.Invoker
	orch    *orchestrator.Orchestrator
	metrics *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPolicy injects a decision policy instead of creating one from config.
func WithPolicy(p policy.Policy) Option {
	return func(a *App) { a.policy = p }
}

// WithInvoker injects a tool invoker instead of connecting the
// configured namespaces.
func WithInvoker(inv toolclient.Invoker) Option {
	return func(a *App) { a.tools = inv }
}

// WithMetrics injects the metrics instruments used by all subsystems.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Initialisation
// is synchronous and fail-fast: every configured namespace must be
// reachable and expose a decodable tool catalog, and the configured
// policy backend must construct cleanly, or New returns an error.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initTools(ctx); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}
	if err := a.initPolicy(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init policy: %w", err)
	}
	if err := a.initOrchestrator(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTools connects the configured tool namespaces and discovers
// their catalogs.
func (a *App) initTools(ctx context.Context) error {
	if a.tools != nil {
		return nil
	}

	namespaces := make([]toolclient.NamespaceConfig, 0, len(a.cfg.Namespaces))
	for _, ns := range a.cfg.Namespaces {
		namespaces = append(namespaces, ns.NamespaceConfig())
	}

	client, err := toolclient.New(ctx, namespaces, toolclient.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.tools = client
	a.closers = append(a.closers, client.Close)

	for _, tool := range client.Tools() {
		slog.Debug("discovered tool", "namespace", tool.Namespace, "name", tool.Definition.Name)
	}
	return nil
}

// initPolicy builds the configured policy backend unless one was injected.
func (a *App) initPolicy() error {
	if a.policy != nil {
		return nil
	}
	if a.cfg.Policy.Name == "" {
		return fmt.Errorf("policy.name is required when no policy is injected")
	}

	reg := config.NewRegistry()
	config.RegisterBuiltinPolicies(reg)

	p, err := reg.Create(a.cfg.Policy)
	if err != nil {
		return err
	}
	slog.Info("policy created", "name", a.cfg.Policy.Name, "model", a.cfg.Policy.Model)

	if len(a.cfg.Policy.Fallbacks) == 0 {
		a.policy = p
		return nil
	}

	chain := resilience.NewFallbackPolicy(a.cfg.Policy.Name, p)
	for _, fb := range a.cfg.Policy.Fallbacks {
		fp, err := reg.Create(fb)
		if err != nil {
			return err
		}
		chain.AddFallback(fb.Name, fp)
		slog.Info("fallback policy created", "name", fb.Name, "model", fb.Model)
	}
	a.policy = chain
	return nil
}

// initOrchestrator assembles the orchestration loop from the config.
func (a *App) initOrchestrator() error {
	oc := a.cfg.Orchestrator

	orchOpts := []orchestrator.Option{
		orchestrator.WithMetrics(a.metrics),
	}
	if a.cfg.Policy.Name != "" {
		orchOpts = append(orchOpts, orchestrator.WithPolicyName(a.cfg.Policy.Name))
	}
	if oc.MaxSteps > 0 {
		orchOpts = append(orchOpts, orchestrator.WithMaxSteps(oc.MaxSteps))
	}
	if oc.ToolTimeout > 0 {
		orchOpts = append(orchOpts, orchestrator.WithToolTimeout(oc.ToolTimeout.Std()))
	}
	if oc.SystemPrompt != "" {
		orchOpts = append(orchOpts, orchestrator.WithSystemPrompt(oc.SystemPrompt))
	}
	if oc.Temperature != nil {
		orchOpts = append(orchOpts, orchestrator.WithTemperature(*oc.Temperature))
	}
	if oc.MaxTokens > 0 {
		orchOpts = append(orchOpts, orchestrator.WithMaxTokens(oc.MaxTokens))
	}

	orch, err := orchestrator.New(a.policy, a.tools, orchOpts...)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// RunQuery answers a single user query through the orchestration loop.
func (a *App) RunQuery(ctx context.Context, userText string) (string, error) {
	return a.orch.RunQuery(ctx, userText)
}

// Tools lists the discovered tool catalog across all namespaces.
func (a *App) Tools() []toolclient.CallableTool {
	return a.tools.Tools()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context
// deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the accumulated closers when New fails partway through.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error during failed init", "err", err)
		}
	}
	a.closers = nil
}

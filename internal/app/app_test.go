package app_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/arithmos/internal/app"
	"github.com/MrWong99/arithmos/internal/config"
	"github.com/MrWong99/arithmos/internal/mathtools"
	"github.com/MrWong99/arithmos/internal/observe"
	"github.com/MrWong99/arithmos/internal/orchestrator"
	"github.com/MrWong99/arithmos/internal/registry"
	"github.com/MrWong99/arithmos/internal/toolserver"
	"github.com/MrWong99/arithmos/pkg/policy"
	policymock "github.com/MrWong99/arithmos/pkg/policy/mock"
	"github.com/MrWong99/arithmos/pkg/types"
)

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// startMathServer exposes the built-in arithmetic tools over an
// httptest server and returns its base URL.
func startMathServer(t *testing.T) string {
	t.Helper()
	reg := registry.New()
	reg.MustRegister(mathtools.Specs()...)
	srv, err := toolserver.New(reg, toolserver.WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("toolserver.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func mathConfig(url string) *config.Config {
	return &config.Config{
		Namespaces: []config.NamespaceEntry{
			{Name: "math", Transport: "streamable-http", URL: url + "/mcp"},
		},
	}
}

func TestRunQueryAgainstRealNamespace(t *testing.T) {
	t.Parallel()
	url := startMathServer(t)

	pol := &policymock.Policy{}
	pol.Script(
		&policy.Decision{ToolCalls: []types.ToolCall{
			{ID: "c1", Name: "add", Arguments: `{"a":2,"b":3}`},
		}},
		&policy.Decision{Content: "The sum is 5."},
	)

	application, err := app.New(context.Background(), mathConfig(url),
		app.WithPolicy(pol),
		app.WithMetrics(newTestMetrics(t)),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	defer application.Shutdown(context.Background())

	answer, err := application.RunQuery(context.Background(), "what is 2 plus 3?")
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if answer != "The sum is 5." {
		t.Errorf("answer = %q, want %q", answer, "The sum is 5.")
	}

	tools := application.Tools()
	if len(tools) != 5 {
		t.Fatalf("discovered %d tools, want 5", len(tools))
	}
	// The policy must have seen the catalog on its first request.
	reqs := pol.Requests()
	if len(reqs) != 2 {
		t.Fatalf("policy saw %d requests, want 2", len(reqs))
	}
	if len(reqs[0].Tools) != 5 {
		t.Errorf("first request carried %d tools, want 5", len(reqs[0].Tools))
	}
}

func TestNewAppliesOrchestratorConfig(t *testing.T) {
	t.Parallel()
	url := startMathServer(t)

	pol := &policymock.Policy{Loop: true}
	pol.Script(&policy.Decision{ToolCalls: []types.ToolCall{
		{ID: "c1", Name: "add", Arguments: `{"a":1,"b":1}`},
	}})

	temp := 0.3
	cfg := mathConfig(url)
	cfg.Orchestrator = config.OrchestratorEntry{
		MaxSteps:     2,
		SystemPrompt: "You are a calculator.",
		Temperature:  &temp,
		MaxTokens:    128,
	}

	application, err := app.New(context.Background(), cfg,
		app.WithPolicy(pol),
		app.WithMetrics(newTestMetrics(t)),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	defer application.Shutdown(context.Background())

	_, err = application.RunQuery(context.Background(), "count forever")
	if !errors.Is(err, orchestrator.ErrLoopLimitExceeded) {
		t.Fatalf("expected loop limit error, got %v", err)
	}
	if got := pol.CallCount(); got != 2 {
		t.Errorf("policy consulted %d times, want 2", got)
	}

	req := pol.Requests()[0]
	if req.SystemPrompt != "You are a calculator." {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if req.Temperature == nil || *req.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", req.Temperature)
	}
	if req.MaxTokens != 128 {
		t.Errorf("max tokens = %d, want 128", req.MaxTokens)
	}
}

func TestNewFailsOnUnreachableNamespace(t *testing.T) {
	t.Parallel()
	cfg := mathConfig("http://127.0.0.1:1")

	_, err := app.New(context.Background(), cfg,
		app.WithPolicy(&policymock.Policy{}),
		app.WithMetrics(newTestMetrics(t)),
	)
	if err == nil {
		t.Fatal("expected error for unreachable namespace, got nil")
	}
	if !strings.Contains(err.Error(), "init tools") {
		t.Errorf("error should come from tool init, got: %v", err)
	}
}

func TestNewRequiresPolicyName(t *testing.T) {
	t.Parallel()
	url := startMathServer(t)

	_, err := app.New(context.Background(), mathConfig(url),
		app.WithMetrics(newTestMetrics(t)),
	)
	if err == nil {
		t.Fatal("expected error for missing policy, got nil")
	}
	if !strings.Contains(err.Error(), "policy.name") {
		t.Errorf("error should mention policy.name, got: %v", err)
	}
}

func TestNewUnknownPolicyBackend(t *testing.T) {
	t.Parallel()
	url := startMathServer(t)

	cfg := mathConfig(url)
	cfg.Policy = config.PolicyEntry{Name: "telepathy"}

	_, err := app.New(context.Background(), cfg,
		app.WithMetrics(newTestMetrics(t)),
	)
	if !errors.Is(err, config.ErrPolicyNotRegistered) {
		t.Fatalf("expected ErrPolicyNotRegistered, got %v", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()
	url := startMathServer(t)

	application, err := app.New(context.Background(), mathConfig(url),
		app.WithPolicy(&policymock.Policy{}),
		app.WithMetrics(newTestMetrics(t)),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	if err := application.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := application.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

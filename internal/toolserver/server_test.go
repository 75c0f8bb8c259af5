package toolserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/arithmos/internal/mathtools"
	"github.com/MrWong99/arithmos/internal/observe"
	"github.com/MrWong99/arithmos/internal/registry"
	"github.com/MrWong99/arithmos/pkg/types"
)

// newTestServer builds a Server around the built-in arithmetic tools and
// returns it together with an httptest server fronting its handler.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	reg := registry.New()
	reg.MustRegister(mathtools.Specs()...)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	srv, err := New(reg, WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

// connect establishes an MCP client session against the test server.
func connect(t *testing.T, ts *httptest.Server) *mcp.ClientSession {
	t.Helper()
	client := mcp.NewClient(&mcp.Implementation{Name: "toolserver-test", Version: "0.0.0"}, nil)
	session, err := client.Connect(context.Background(),
		&mcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// callText invokes a tool over the session and returns the concatenated text
// content plus the IsError flag.
func callText(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%q): %v", name, err)
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String(), res.IsError
}

// ──────────────────────────────────────────────────────────────────────────────
// Discovery
// ──────────────────────────────────────────────────────────────────────────────

// TestDiscovery verifies that every registered tool is advertised with its
// schema, in name order.
func TestDiscovery(t *testing.T) {
	_, ts := newTestServer(t)
	session := connect(t, ts)

	var names []string
	var addTool *mcp.Tool
	for tool, err := range session.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("Tools: %v", err)
		}
		names = append(names, tool.Name)
		if tool.Name == "add" {
			cp := *tool
			addTool = &cp
		}
	}

	want := []string{"add", "divide", "factorial", "multiply", "square_root"}
	if len(names) != len(want) {
		t.Fatalf("discovered %d tools (%v), want %d", len(names), names, len(want))
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("tool[%d] = %q, want %q", i, names[i], n)
		}
	}

	if addTool == nil {
		t.Fatal("tool \"add\" not discovered")
	}
	if addTool.Description == "" {
		t.Error("tool \"add\" has no description")
	}

	// The input schema must declare both integer parameters as required.
	raw, err := json.Marshal(addTool.InputSchema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var schema struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("schema type = %q, want object", schema.Type)
	}
	for _, p := range []string{"a", "b"} {
		if schema.Properties[p].Type != "integer" {
			t.Errorf("property %q type = %q, want integer", p, schema.Properties[p].Type)
		}
	}
	if len(schema.Required) != 2 {
		t.Errorf("required = %v, want [a b]", schema.Required)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Invocation
// ──────────────────────────────────────────────────────────────────────────────

// TestCallToolSuccess verifies the success wire shape: the raw value JSON as
// a single text block with IsError false.
func TestCallToolSuccess(t *testing.T) {
	_, ts := newTestServer(t)
	session := connect(t, ts)

	text, isErr := callText(t, session, "add", map[string]any{"a": 2, "b": 3})
	if isErr {
		t.Fatalf("add reported an error: %s", text)
	}
	if text != "5" {
		t.Errorf("add result = %q, want %q", text, "5")
	}

	text, isErr = callText(t, session, "square_root", map[string]any{"x": 16})
	if isErr {
		t.Fatalf("square_root reported an error: %s", text)
	}
	if text != "4" {
		t.Errorf("square_root result = %q, want %q", text, "4")
	}
}

// TestCallToolFailure verifies the failure wire shape: an encoded failure
// payload with IsError true, decodable back into kind and message.
func TestCallToolFailure(t *testing.T) {
	_, ts := newTestServer(t)
	session := connect(t, ts)

	cases := []struct {
		name     string
		tool     string
		args     map[string]any
		wantKind types.ErrorKind
	}{
		{"division by zero", "divide", map[string]any{"a": 10, "b": 0}, types.ErrDomain},
		{"negative factorial", "factorial", map[string]any{"n": -1}, types.ErrDomain},
		{"missing argument", "add", map[string]any{"a": 2}, types.ErrInvalidArgument},
		{"undeclared argument", "add", map[string]any{"a": 2, "b": 3, "c": 4}, types.ErrInvalidArgument},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, isErr := callText(t, session, tc.tool, tc.args)
			if !isErr {
				t.Fatalf("expected an error result, got %q", text)
			}
			failure := types.DecodeFailure(text)
			if failure.Kind != tc.wantKind {
				t.Errorf("Kind = %q, want %q (message: %s)", failure.Kind, tc.wantKind, failure.Message)
			}
			if failure.Message == "" {
				t.Error("failure carries no message")
			}
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Operational endpoints
// ──────────────────────────────────────────────────────────────────────────────

// TestOperationalEndpoints verifies probes and the Prometheus scrape
// endpoint are reachable through the middleware stack.
func TestOperationalEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			if err != nil {
				t.Fatalf("GET %s: %v", path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, http.StatusOK)
			}
			if resp.Header.Get("X-Correlation-ID") == "" {
				t.Errorf("GET %s missing X-Correlation-ID header", path)
			}
		})
	}
}

// TestReadyzEmptyRegistry verifies that a server with no tools fails
// readiness while staying alive.
func TestReadyzEmptyRegistry(t *testing.T) {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	srv, err := New(registry.New(), WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	resp2, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d, want %d", resp2.StatusCode, http.StatusOK)
	}
}

// TestStartShutdown verifies the listener lifecycle on an ephemeral port.
func TestStartShutdown(t *testing.T) {
	reg := registry.New()
	reg.MustRegister(mathtools.Specs()...)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	srv, err := New(reg, WithAddr("127.0.0.1:0"), WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

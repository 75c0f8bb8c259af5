// Package toolserver exposes a [registry.Registry] over the MCP
// streamable-HTTP transport using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// Alongside the /mcp protocol endpoint the server carries the standard
// operational surface: /healthz and /readyz probes and a Prometheus
// /metrics endpoint, all wrapped in the tracing middleware from
// [observe].
//
// Typical usage:
//
//	srv, err := toolserver.New(reg, toolserver.WithAddr(":8321"))
//	if err != nil { ... }
//	if err := srv.Start(); err != nil { ... }
//	defer srv.Shutdown(ctx)
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/arithmos/internal/health"
	"github.com/MrWong99/arithmos/internal/observe"
	"github.com/MrWong99/arithmos/internal/registry"
	"github.com/MrWong99/arithmos/pkg/types"
)

// defaultAddr is the listen address used when no [WithAddr] option is given.
const defaultAddr = ":8321"

// shutdownTimeout bounds graceful HTTP shutdown when the caller's context
// carries no deadline of its own.
const shutdownTimeout = 10 * time.Second

// Server serves a tool registry over MCP streamable HTTP.
//
// The zero value is NOT usable; create instances with [New].
type Server struct {
	reg     *registry.Registry
	metrics *observe.Metrics
	addr    string
	version string

	mcpServer  *mcp.Server
	httpServer *http.Server
	listener   net.Listener
}

// Option customises a [Server] created by [New].
type Option func(*Server)

// WithAddr sets the TCP listen address, e.g. ":8321" or "127.0.0.1:0".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the server version advertised during the MCP handshake.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds a Server for reg. The registry must already be populated; an
// empty registry fails readiness but is otherwise accepted so that probe
// behaviour can be tested.
func New(reg *registry.Registry, opts ...Option) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("toolserver: registry must not be nil")
	}

	s := &Server{
		reg:     reg,
		addr:    defaultAddr,
		version: "0.0.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: "arithmos-server", Version: s.version}, nil)
	for _, def := range reg.List() {
		s.mcpServer.AddTool(&mcp.Tool{
			Name:         def.Name,
			Description:  def.Description,
			InputSchema:  paramSchema(def),
			OutputSchema: returnSchema(def),
		}, s.toolHandler(def.Name))
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.mcpServer },
		nil,
	))
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(health.Checker{Name: "tools", Check: s.checkTools}).Register(mux)

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           observe.Middleware(s.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// toolHandler adapts a registry invocation to the MCP wire contract: the
// result value (or the encoded failure) travels as a single text content
// block, and IsError mirrors the failure flag. Faults never surface as
// protocol errors.
func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := observe.StartSpan(ctx, "tool "+name)
		defer span.End()
		start := time.Now()

		args, err := decodeArgs(req.Params.Arguments)

		var result types.ToolCallResult
		if err != nil {
			result = types.Failure(types.ErrInvalidArgument, fmt.Sprintf("tool %q: arguments must be a JSON object: %v", name, err))
		} else {
			result = s.reg.Invoke(ctx, name, args)
		}

		status := "ok"
		payload := result.Value
		if result.Failed() {
			status = string(result.Kind)
			payload = result.Encode()
		}
		s.metrics.RecordToolCall(ctx, name, status)
		s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("tool", name)))

		observe.Logger(ctx).Debug("tool invoked",
			"tool", name,
			"status", status,
			"duration", time.Since(start),
		)

		res := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: payload}},
			IsError: result.Failed(),
		}
		if !result.Failed() {
			// Tools advertising an output schema must also carry the
			// structured form of the value.
			res.StructuredContent = structuredValue(payload)
		}
		return res, nil
	}
}

// structuredValue re-decodes the success payload for the structured half of
// the result. UseNumber keeps 64-bit integer results exact.
func structuredValue(payload string) any {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// decodeArgs parses the raw MCP arguments payload into the map form the
// registry validates. A missing or empty payload means a parameter-less
// call.
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// checkTools is the readiness probe: a server with nothing registered
// cannot answer any useful call.
func (s *Server) checkTools(context.Context) error {
	if len(s.reg.List()) == 0 {
		return fmt.Errorf("no tools registered")
	}
	return nil
}

// paramSchema renders a tool definition's parameter list as the JSON-Schema
// object advertised during discovery. Parameters are already sorted by the
// definition; required names are listed in that same order so repeated
// discovery yields identical schemas.
func paramSchema(def types.ToolDefinition) *jsonschema.Schema {
	props := make(map[string]*jsonschema.Schema, len(def.Parameters))
	var required []string
	for _, p := range def.Parameters {
		props[p.Name] = &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
		// Undeclared arguments are a caller bug; reject them at the schema
		// level as well as in the registry.
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

// returnSchema advertises the semantic type of the tool's success value so
// clients can reconstruct the full definition during discovery. Definitions
// without a declared return type advertise no output schema.
func returnSchema(def types.ToolDefinition) *jsonschema.Schema {
	if def.Returns == "" {
		return nil
	}
	return &jsonschema.Schema{Type: string(def.Returns)}
}

// Start begins listening on the configured address and serves HTTP in a
// background goroutine. It returns once the listener is bound, so tests can
// read [Server.Addr] immediately after.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("toolserver: listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			observe.Logger(context.Background()).Error("tool server stopped", "error", err)
		}
	}()
	return nil
}

// RunStdio serves the registry over stdin/stdout instead of HTTP, for
// deployments where the client launches the server as a subprocess. It
// blocks until ctx is cancelled or the peer disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("toolserver: stdio session: %w", err)
	}
	return nil
}

// Addr returns the bound listen address. Valid only after [Server.Start].
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Handler returns the full HTTP handler, including middleware and the
// operational endpoints. Exposed for in-process tests via httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown drains in-flight requests and closes the listener. A context
// without a deadline is bounded by [shutdownTimeout].
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("toolserver: shutdown: %w", err)
	}
	return nil
}

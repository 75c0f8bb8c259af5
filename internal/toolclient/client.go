// Package toolclient connects to one or more Arithmos tool servers and
// exposes their combined tool catalogue to the orchestration loop.
//
// Servers are addressed by namespace: a short logical key mapped to
// connection parameters (stdio subprocess or streamable-HTTP endpoint) via
// [NamespaceConfig]. Discovery is fail-fast — one unreachable namespace
// fails the whole [New] call, because a policy planning against a partial
// tool list produces confusing runs.
//
// Typical usage:
//
//	c, err := toolclient.New(ctx, []toolclient.NamespaceConfig{
//	    {Name: "math", Transport: toolclient.TransportStreamableHTTP, URL: "http://localhost:8321/mcp"},
//	})
//	if err != nil { ... }
//	defer c.Close()
//
//	for _, tool := range c.Tools() { ... }
//	result := c.Invoke(ctx, "square_root", map[string]any{"x": 16})
package toolclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/arithmos/internal/observe"
	"github.com/MrWong99/arithmos/pkg/types"
)

// Transport selects the connection mechanism for a tool server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// NamespaceConfig describes one tool server and how to reach it.
type NamespaceConfig struct {
	// Name is the logical namespace key, e.g. "math". Must be unique.
	Name string

	// Transport selects stdio or streamable HTTP.
	Transport Transport

	// URL is the endpoint address for streamable-HTTP namespaces.
	URL string

	// Command is the subprocess command line for stdio namespaces, split on
	// spaces into executable + args.
	Command string

	// Env holds additional environment variables for stdio subprocesses.
	Env map[string]string
}

// CallableTool is one discovered tool bound to the namespace serving it.
type CallableTool struct {
	// Namespace is the logical key of the server that advertised the tool.
	Namespace string

	// Definition is the tool's typed signature as decoded from its
	// discovery schema.
	Definition types.ToolDefinition
}

// Invoker is the remote tool surface the orchestration loop depends on.
// *Client is the production implementation; tests substitute the mock
// package.
type Invoker interface {
	// Tools returns the combined catalogue, sorted by namespace then name.
	Tools() []CallableTool

	// Invoke executes the named tool. Execution and transport faults are
	// returned as failure results, never as Go errors.
	Invoke(ctx context.Context, name string, args map[string]any) types.ToolCallResult

	// Close releases all server connections.
	Close() error
}

// toolEntry routes a policy-visible tool name to its owning session.
type toolEntry struct {
	namespace string
	def       types.ToolDefinition
}

// Client aggregates tool sessions across namespaces.
//
// The catalogue is fixed at construction; afterwards the Client is safe for
// concurrent Invoke from any number of runs. The zero value is NOT usable;
// create instances with [New].
type Client struct {
	client   *mcpsdk.Client
	metrics  *observe.Metrics
	sessions map[string]*mcpsdk.ClientSession // key: namespace
	tools    map[string]toolEntry             // key: policy-visible tool name
	catalog  []CallableTool

	closeOnce sync.Once
	closeErr  error
}

// Compile-time check: Client must implement Invoker.
var _ Invoker = (*Client)(nil)

// Option customises a [Client] created by [New].
type Option func(*Client)

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New connects to every configured namespace and discovers its tools. Any
// unreachable namespace, failed listing, or tool-name collision across
// namespaces fails the whole call; already-opened sessions are closed on the
// way out.
func New(ctx context.Context, namespaces []NamespaceConfig, opts ...Option) (*Client, error) {
	if len(namespaces) == 0 {
		return nil, fmt.Errorf("tool client: at least one namespace is required")
	}

	c := &Client{
		client:   mcpsdk.NewClient(&mcpsdk.Implementation{Name: "arithmos", Version: "1.0.0"}, nil),
		sessions: make(map[string]*mcpsdk.ClientSession, len(namespaces)),
		tools:    make(map[string]toolEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	for _, ns := range namespaces {
		if err := c.connect(ctx, ns); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	slices.SortFunc(c.catalog, func(a, b CallableTool) int {
		if d := strings.Compare(a.Namespace, b.Namespace); d != 0 {
			return d
		}
		return strings.Compare(a.Definition.Name, b.Definition.Name)
	})

	return c, nil
}

// connect establishes the session for one namespace and imports its tools.
func (c *Client) connect(ctx context.Context, ns NamespaceConfig) error {
	if ns.Name == "" {
		return fmt.Errorf("tool client: namespace config must have a non-empty name")
	}
	if _, ok := c.sessions[ns.Name]; ok {
		return fmt.Errorf("tool client: duplicate namespace %q", ns.Name)
	}
	if !ns.Transport.IsValid() {
		return fmt.Errorf("tool client: unknown transport %q for namespace %q", ns.Transport, ns.Name)
	}

	var transport mcpsdk.Transport
	switch ns.Transport {
	case TransportStdio:
		executable, args := splitCommand(ns.Command)
		if executable == "" {
			return fmt.Errorf("tool client: stdio namespace %q requires a non-empty Command", ns.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range ns.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if ns.URL == "" {
			return fmt.Errorf("tool client: streamable-http namespace %q requires a non-empty URL", ns.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: ns.URL}
	}

	start := time.Now()
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tool client: failed to connect to namespace %q: %w", ns.Name, err)
	}

	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tool client: failed to list tools for namespace %q: %w", ns.Name, err)
		}
		def, err := decodeDefinition(tool)
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tool client: namespace %q: %w", ns.Name, err)
		}
		if prev, ok := c.tools[def.Name]; ok {
			_ = session.Close()
			return fmt.Errorf("tool client: tool %q served by both %q and %q", def.Name, prev.namespace, ns.Name)
		}
		c.tools[def.Name] = toolEntry{namespace: ns.Name, def: def}
		c.catalog = append(c.catalog, CallableTool{Namespace: ns.Name, Definition: def})
	}

	c.sessions[ns.Name] = session
	c.metrics.DiscoveryDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("namespace", ns.Name)))

	observe.Logger(ctx).Info("namespace connected",
		"namespace", ns.Name,
		"transport", string(ns.Transport),
		"tools", len(c.catalog),
	)
	return nil
}

// Tools returns the combined catalogue, sorted by namespace then name. The
// returned slice is a copy.
func (c *Client) Tools() []CallableTool {
	out := make([]CallableTool, len(c.catalog))
	copy(out, c.catalog)
	return out
}

// Invoke executes the named tool with the given arguments and returns the
// decoded result.
//
// Unknown names yield an unknown_tool failure; transport-level faults
// (connection reset, timeout, cancelled context) yield a transport failure.
// Failures reported by the server travel back with their original kind.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) types.ToolCallResult {
	entry, ok := c.tools[name]
	if !ok {
		return types.Failure(types.ErrUnknownTool, fmt.Sprintf("no namespace serves a tool named %q", name))
	}
	session := c.sessions[entry.namespace]

	ctx, span := observe.StartSpan(ctx, "invoke "+name)
	defer span.End()
	start := time.Now()

	callResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})

	c.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("tool", name)))

	if err != nil {
		c.metrics.RecordToolCall(ctx, name, "transport_error")
		return types.Failure(types.ErrTransport, fmt.Sprintf("call to tool %q failed: %v", name, err))
	}

	// Concatenate all text content from the result.
	var sb strings.Builder
	for _, content := range callResult.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	if callResult.IsError {
		failure := types.DecodeFailure(sb.String())
		c.metrics.RecordToolCall(ctx, name, string(failure.Kind))
		return failure
	}

	c.metrics.RecordToolCall(ctx, name, "ok")
	return types.Success(sb.String())
}

// Close releases all namespace sessions. Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for name, session := range c.sessions {
			if err := session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("tool client: close namespace %q: %w", name, err))
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// splitCommand splits a command line on spaces into executable and args.
// Quoting is not supported; namespace commands needing it should use a
// wrapper script.
func splitCommand(command string) (executable string, args []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// decodeDefinition converts an advertised MCP tool into the typed definition
// the policy plans against. Parameters are ordered lexicographically by name
// so repeated discovery yields identical definitions regardless of schema
// map iteration order.
func decodeDefinition(tool *mcpsdk.Tool) (types.ToolDefinition, error) {
	def := types.ToolDefinition{
		Name:        tool.Name,
		Description: tool.Description,
	}
	if tool.Name == "" {
		return def, fmt.Errorf("advertised tool has an empty name")
	}

	schema := schemaToMap(tool.InputSchema)
	props, _ := schema["properties"].(map[string]any)
	required := make(map[string]bool)
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	for propName, raw := range props {
		prop, _ := raw.(map[string]any)
		spec := types.ParamSpec{
			Name:     propName,
			Type:     types.TypeString,
			Required: required[propName],
		}
		if typ, ok := prop["type"].(string); ok {
			pt := types.ParamType(typ)
			if !pt.IsValid() {
				return def, fmt.Errorf("tool %q parameter %q has unsupported type %q", tool.Name, propName, typ)
			}
			spec.Type = pt
		}
		if desc, ok := prop["description"].(string); ok {
			spec.Description = desc
		}
		def.Parameters = append(def.Parameters, spec)
	}

	slices.SortFunc(def.Parameters, func(a, b types.ParamSpec) int {
		return strings.Compare(a.Name, b.Name)
	})

	if tool.OutputSchema != nil {
		out := schemaToMap(tool.OutputSchema)
		if typ, ok := out["type"].(string); ok {
			rt := types.ParamType(typ)
			if !rt.IsValid() {
				return def, fmt.Errorf("tool %q advertises unsupported return type %q", tool.Name, typ)
			}
			def.Returns = rt
		}
	}
	return def, nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

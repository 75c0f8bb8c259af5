// Package registry implements the server-side tool registry: the set of
// invocable functions, their typed signatures, and their executable handlers.
//
// A [Registry] is populated once at server startup via [Registry.Register]
// and is read-only afterwards — [Registry.List] answers discovery queries and
// [Registry.Invoke] executes a named call. Invoke validates arguments against
// the declared parameter schema before dispatch and converts every
// execution-time error into a [types.ToolCallResult] failure, so a fault
// never escapes the registry as a raised error.
//
// Typical usage:
//
//	reg := registry.New()
//	err := reg.Register(registry.ToolSpec{
//	    Definition: types.ToolDefinition{Name: "add", ...},
//	    Handler:    addHandler,
//	})
//
//	result := reg.Invoke(ctx, "add", map[string]any{"a": 2, "b": 3})
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/MrWong99/arithmos/pkg/types"
)

// ErrDuplicateTool is returned by [Registry.Register] when a tool with the
// same name is already present. Duplicate registration is a startup bug and
// is fatal to server construction.
var ErrDuplicateTool = errors.New("registry: duplicate tool name")

// Handler executes a tool call. args has been validated against the tool's
// parameter schema: every declared argument is present with its declared Go
// type (int64 for integer, float64 for number, string, bool), and no
// undeclared keys remain. Returning a non-nil error marks the call as a
// domain failure. Implementations must be safe for concurrent use and must
// respect context cancellation.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// ToolSpec pairs a tool's public definition with its executable handler.
type ToolSpec struct {
	// Definition is the tool's discovery-visible descriptor.
	Definition types.ToolDefinition

	// Handler is invoked for each validated call.
	Handler Handler
}

// Registry maps tool names to their specs. Registration happens once at
// startup; afterwards the registry is immutable and safe for concurrent
// List/Invoke from any number of goroutines without locking.
//
// The zero value is NOT usable; create instances with [New].
type Registry struct {
	tools map[string]ToolSpec
}

// New returns an empty, ready-to-use Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]ToolSpec)}
}

// Register adds a tool spec. It fails with [ErrDuplicateTool] if the name is
// already taken, and with a descriptive error for malformed specs (empty
// name, nil handler, invalid parameter types, duplicate parameter names).
//
// Register is not safe for use concurrently with List or Invoke — call it
// only during server construction.
func (r *Registry) Register(spec ToolSpec) error {
	name := spec.Definition.Name
	if name == "" {
		return fmt.Errorf("registry: tool must have a non-empty name")
	}
	if spec.Handler == nil {
		return fmt.Errorf("registry: tool %q must have a non-nil handler", name)
	}
	if !spec.Definition.Returns.IsValid() {
		return fmt.Errorf("registry: tool %q has invalid return type %q", name, spec.Definition.Returns)
	}
	seen := make(map[string]bool, len(spec.Definition.Parameters))
	for _, p := range spec.Definition.Parameters {
		if p.Name == "" {
			return fmt.Errorf("registry: tool %q has a parameter with an empty name", name)
		}
		if !p.Type.IsValid() {
			return fmt.Errorf("registry: tool %q parameter %q has invalid type %q", name, p.Name, p.Type)
		}
		if seen[p.Name] {
			return fmt.Errorf("registry: tool %q declares parameter %q twice", name, p.Name)
		}
		seen[p.Name] = true
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}

	r.tools[name] = spec
	return nil
}

// MustRegister registers each spec in turn and panics on the first error.
// Intended for wiring built-in tool sets whose specs are compile-time
// constants.
func (r *Registry) MustRegister(specs ...ToolSpec) {
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// List returns the definitions of all registered tools, sorted by name so
// discovery responses are deterministic across calls.
func (r *Registry) List() []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(r.tools))
	for _, spec := range r.tools {
		defs = append(defs, spec.Definition)
	}
	slices.SortFunc(defs, func(a, b types.ToolDefinition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return defs
}

// Invoke looks up the named tool, validates args against its parameter
// schema, and executes the handler synchronously.
//
// Invoke never returns a Go error: unknown names, schema mismatches, and
// handler errors are all reported as [types.ToolCallResult] failures so they
// flow back to the caller as data.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) types.ToolCallResult {
	spec, ok := r.tools[name]
	if !ok {
		return types.Failure(types.ErrUnknownTool, fmt.Sprintf("no tool named %q is registered", name))
	}

	validated, err := validateArgs(spec.Definition, args)
	if err != nil {
		return types.Failure(types.ErrInvalidArgument, err.Error())
	}

	value, err := spec.Handler(ctx, validated)
	if err != nil {
		return types.Failure(types.ErrDomain, err.Error())
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return types.Failure(types.ErrDomain, fmt.Sprintf("tool %q returned an unencodable value: %v", name, err))
	}
	return types.Success(string(encoded))
}

// validateArgs checks args against def's parameter schema and returns a copy
// with every value coerced to the canonical Go type for its declared
// [types.ParamType].
func validateArgs(def types.ToolDefinition, args map[string]any) (map[string]any, error) {
	for key := range args {
		if def.Param(key) == nil {
			return nil, fmt.Errorf("tool %q does not accept argument %q", def.Name, key)
		}
	}

	validated := make(map[string]any, len(def.Parameters))
	for _, p := range def.Parameters {
		raw, ok := args[p.Name]
		if !ok {
			if p.Required {
				return nil, fmt.Errorf("tool %q requires argument %q", def.Name, p.Name)
			}
			continue
		}
		coerced, err := coerce(raw, p.Type)
		if err != nil {
			return nil, fmt.Errorf("tool %q argument %q: %v", def.Name, p.Name, err)
		}
		validated[p.Name] = coerced
	}
	return validated, nil
}

// coerce converts a JSON-decoded value to the canonical Go representation of
// the declared type: int64, float64, string, or bool.
func coerce(v any, t types.ParamType) (any, error) {
	switch t {
	case types.TypeInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected an integer, got %v", n)
			}
			return int64(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected an integer, got %q", n.String())
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected an integer, got %T", v)

	case types.TypeNumber:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %q", n.String())
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected a number, got %T", v)

	case types.TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil

	case types.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unsupported parameter type %q", t)
}

package config

import (
	"errors"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/arithmos/pkg/policy"
	"github.com/MrWong99/arithmos/pkg/policy/anyllm"
	"github.com/MrWong99/arithmos/pkg/policy/openai"
)

// ErrPolicyNotRegistered is returned by [Registry.Create] when no
// factory has been registered under the requested name.
var ErrPolicyNotRegistered = errors.New("config: policy not registered")

// PolicyFactory builds a decision policy from its configuration entry.
type PolicyFactory func(entry PolicyEntry) (policy.Policy, error)

// Registry maps policy names to factories. All methods are safe for
// concurrent use.
//
// The zero value is NOT usable; create instances with [NewRegistry].
type Registry struct {
	mu        sync.RWMutex
	factories map[string]PolicyFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]PolicyFactory)}
}

// Register adds a factory under the given name, replacing any existing
// registration.
func (r *Registry) Register(name string, f PolicyFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create instantiates the policy named in entry.
func (r *Registry) Create(entry PolicyEntry) (policy.Policy, error) {
	r.mu.RLock()
	f, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPolicyNotRegistered, entry.Name)
	}
	p, err := f(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create policy %q: %w", entry.Name, err)
	}
	return p, nil
}

// Names returns the registered policy names in unspecified order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// RegisterBuiltinPolicies wires all policy backends that ship with
// arithmos into reg.
func RegisterBuiltinPolicies(reg *Registry) {
	// The native openai backend talks to the API directly and supports
	// per-request organization headers.
	reg.Register("openai", func(entry PolicyEntry) (policy.Policy, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// Hosted backends routed through any-llm share the same shape:
	// optional APIKey plus optional BaseURL.
	for _, backend := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq",
	} {
		reg.Register(backend, func(entry PolicyEntry) (policy.Policy, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// Local servers use BaseURL for the address, not an API key.
	for _, backend := range []string{"ollama", "llamacpp", "llamafile"} {
		reg.Register(backend, func(entry PolicyEntry) (policy.Policy, error) {
			var opts []anyllmlib.Option
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}
}

// Package config defines the YAML configuration schema shared by the
// arithmos binaries and a registry of policy backend factories.
//
// Configuration is loaded once at startup with [Load]; the namespace
// table and policy selection are fixed for the lifetime of the process.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/arithmos/internal/toolclient"
)

// Duration is a [time.Duration] that unmarshals from YAML strings such
// as "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel is a configuration-friendly wrapper around slog levels.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether the level is one of the known values.
// The empty string is valid and means [LogInfo].
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog converts the level to its slog equivalent, defaulting to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root of the arithmos configuration file.
type Config struct {
	Server       ServerConfig      `yaml:"server"`
	Namespaces   []NamespaceEntry  `yaml:"namespaces"`
	Policy       PolicyEntry       `yaml:"policy"`
	Orchestrator OrchestratorEntry `yaml:"orchestrator"`
}

// ServerConfig holds settings for the tool server binary.
type ServerConfig struct {
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`
}

// NamespaceEntry describes one tool namespace the client connects to.
type NamespaceEntry struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// NamespaceConfig converts the entry into the tool client's form.
func (n NamespaceEntry) NamespaceConfig() toolclient.NamespaceConfig {
	return toolclient.NamespaceConfig{
		Name:      n.Name,
		Transport: toolclient.Transport(n.Transport),
		URL:       n.URL,
		Command:   n.Command,
		Env:       n.Env,
	}
}

// PolicyEntry selects and configures a decision policy backend.
// Fallbacks name additional backends tried in order when this one
// fails; only the top-level entry may carry fallbacks.
type PolicyEntry struct {
	Name      string         `yaml:"name"`
	APIKey    string         `yaml:"api_key"`
	BaseURL   string         `yaml:"base_url"`
	Model     string         `yaml:"model"`
	Options   map[string]any `yaml:"options"`
	Fallbacks []PolicyEntry  `yaml:"fallbacks"`
}

// Option extracts a string value from the Options map. It returns ""
// if the map is nil, the key is absent, or the value is not a string.
func (e PolicyEntry) Option(key string) string {
	v, ok := e.Options[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// OrchestratorEntry tunes the orchestration loop.
type OrchestratorEntry struct {
	MaxSteps     int      `yaml:"max_steps"`
	ToolTimeout  Duration `yaml:"tool_timeout"`
	SystemPrompt string   `yaml:"system_prompt"`
	Temperature  *float64 `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	LogLevel     LogLevel `yaml:"log_level"`
}

// Validate checks the configuration for internal consistency. All
// problems found are reported at once.
func (c *Config) Validate() error {
	var errs []error
	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server: unknown log_level %q", c.Server.LogLevel))
	}
	if !c.Orchestrator.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("orchestrator: unknown log_level %q", c.Orchestrator.LogLevel))
	}
	if c.Orchestrator.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("orchestrator: max_steps must not be negative, got %d", c.Orchestrator.MaxSteps))
	}
	if c.Orchestrator.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("orchestrator: tool_timeout must not be negative, got %s", c.Orchestrator.ToolTimeout))
	}
	for i, fb := range c.Policy.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("policy: fallbacks[%d]: name must not be empty", i))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("policy: fallbacks[%d]: fallbacks must not nest", i))
		}
	}
	seen := make(map[string]bool, len(c.Namespaces))
	for i, ns := range c.Namespaces {
		if ns.Name == "" {
			errs = append(errs, fmt.Errorf("namespaces[%d]: name must not be empty", i))
		} else if seen[ns.Name] {
			errs = append(errs, fmt.Errorf("namespaces[%d]: duplicate name %q", i, ns.Name))
		}
		seen[ns.Name] = true
		t := toolclient.Transport(ns.Transport)
		if !t.IsValid() {
			errs = append(errs, fmt.Errorf("namespaces[%d]: unknown transport %q", i, ns.Transport))
			continue
		}
		switch t {
		case toolclient.TransportStdio:
			if ns.Command == "" {
				errs = append(errs, fmt.Errorf("namespaces[%d]: stdio transport requires a command", i))
			}
		case toolclient.TransportStreamableHTTP:
			if ns.URL == "" {
				errs = append(errs, fmt.Errorf("namespaces[%d]: streamable-http transport requires a url", i))
			}
		}
	}
	return errors.Join(errs...)
}

package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/arithmos/internal/config"
	"github.com/MrWong99/arithmos/internal/toolclient"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9000"
  log_level: debug
namespaces:
  - name: math
    transport: streamable-http
    url: http://localhost:8321/mcp
  - name: local
    transport: stdio
    command: arithmos-server -stdio
    env:
      LOG_LEVEL: warn
policy:
  name: openai
  api_key: sk-test
  model: gpt-4o-mini
  options:
    organization: org-123
orchestrator:
  max_steps: 5
  tool_timeout: 10s
  system_prompt: "You are a calculator."
  temperature: 0.2
  max_tokens: 256
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr = %q, want %q", cfg.Server.ListenAddr, ":9000")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if len(cfg.Namespaces) != 2 {
		t.Fatalf("namespaces = %d, want 2", len(cfg.Namespaces))
	}
	ns := cfg.Namespaces[0].NamespaceConfig()
	if ns.Name != "math" || ns.Transport != toolclient.TransportStreamableHTTP {
		t.Errorf("namespace[0] = %+v, want math over streamable-http", ns)
	}
	if got := cfg.Namespaces[1].Env["LOG_LEVEL"]; got != "warn" {
		t.Errorf("namespace[1] env LOG_LEVEL = %q, want warn", got)
	}
	if cfg.Policy.Name != "openai" || cfg.Policy.Model != "gpt-4o-mini" {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	if got := cfg.Policy.Option("organization"); got != "org-123" {
		t.Errorf("policy option organization = %q, want org-123", got)
	}
	if cfg.Orchestrator.MaxSteps != 5 {
		t.Errorf("max_steps = %d, want 5", cfg.Orchestrator.MaxSteps)
	}
	if cfg.Orchestrator.ToolTimeout.Std() != 10*time.Second {
		t.Errorf("tool_timeout = %s, want 10s", cfg.Orchestrator.ToolTimeout)
	}
	if cfg.Orchestrator.Temperature == nil || *cfg.Orchestrator.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", cfg.Orchestrator.Temperature)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_adr: ":9000"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_UnknownLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_NamespaceErrors(t *testing.T) {
	t.Parallel()
	yaml := `
namespaces:
  - name: math
    transport: streamable-http
  - name: math
    transport: stdio
  - name: other
    transport: carrier-pigeon
    url: http://localhost/mcp
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "requires a url") {
		t.Errorf("error should mention the missing url, got: %v", err)
	}
	if !strings.Contains(errStr, "duplicate name") {
		t.Errorf("error should mention the duplicate namespace, got: %v", err)
	}
	if !strings.Contains(errStr, "requires a command") {
		t.Errorf("error should mention the missing command, got: %v", err)
	}
	if !strings.Contains(errStr, "carrier-pigeon") {
		t.Errorf("error should mention the unknown transport, got: %v", err)
	}
}

func TestValidate_PolicyFallbacks(t *testing.T) {
	t.Parallel()
	yaml := `
policy:
  name: openai
  fallbacks:
    - model: gpt-4o-mini
    - name: ollama
      fallbacks:
        - name: groq
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	if !strings.Contains(err.Error(), "name must not be empty") {
		t.Errorf("error should mention the unnamed fallback, got: %v", err)
	}
	if !strings.Contains(err.Error(), "must not nest") {
		t.Errorf("error should reject nested fallbacks, got: %v", err)
	}
}

func TestValidate_NegativeOrchestratorSettings(t *testing.T) {
	t.Parallel()
	yaml := `
orchestrator:
  max_steps: -1
  tool_timeout: -5s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	if !strings.Contains(err.Error(), "max_steps") {
		t.Errorf("error should mention max_steps, got: %v", err)
	}
	if !strings.Contains(err.Error(), "tool_timeout") {
		t.Errorf("error should mention tool_timeout, got: %v", err)
	}
}

func TestLogLevelSlog(t *testing.T) {
	t.Parallel()
	if got := config.LogLevel("").Slog().String(); got != "INFO" {
		t.Errorf("empty level = %s, want INFO", got)
	}
	if got := config.LogDebug.Slog().String(); got != "DEBUG" {
		t.Errorf("debug level = %s, want DEBUG", got)
	}
}

// Command arithmos-server exposes the built-in arithmetic tools over MCP.
//
// By default it serves streamable HTTP on :8321 with /healthz, /readyz
// and /metrics alongside the protocol endpoint. With -stdio it instead
// speaks MCP over stdin/stdout, for use as a subprocess namespace.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/arithmos/internal/config"
	"github.com/MrWong99/arithmos/internal/mathtools"
	"github.com/MrWong99/arithmos/internal/observe"
	"github.com/MrWong99/arithmos/internal/registry"
	"github.com/MrWong99/arithmos/internal/toolserver"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	addr := flag.String("addr", "", "listen address, overrides the config file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn or error; overrides the config file")
	stdio := flag.Bool("stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "arithmos-server: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}
	level := cfg.Server.LogLevel
	if *logLevel != "" {
		level = config.LogLevel(*logLevel)
		if !level.IsValid() {
			fmt.Fprintf(os.Stderr, "arithmos-server: unknown log level %q\n", *logLevel)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// In stdio mode stdout carries the protocol stream, so logs must stay on
	// stderr either way.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Slog()}))
	slog.SetDefault(logger)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "arithmos-server",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Tool registry ─────────────────────────────────────────────────────────
	reg := registry.New()
	reg.MustRegister(mathtools.Specs()...)

	srvOpts := []toolserver.Option{toolserver.WithVersion(version)}
	if cfg.Server.ListenAddr != "" {
		srvOpts = append(srvOpts, toolserver.WithAddr(cfg.Server.ListenAddr))
	}
	srv, err := toolserver.New(reg, srvOpts...)
	if err != nil {
		slog.Error("failed to create tool server", "err", err)
		return 1
	}

	// ── Stdio mode ────────────────────────────────────────────────────────────
	if *stdio {
		slog.Info("arithmos-server speaking MCP on stdio", "tools", len(reg.List()), "version", version)
		if err := srv.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("stdio session error", "err", err)
			return 1
		}
		return 0
	}

	// ── HTTP mode ─────────────────────────────────────────────────────────────
	if err := srv.Start(); err != nil {
		slog.Error("failed to start tool server", "err", err)
		return 1
	}

	printStartupSummary(srv.Addr(), reg)
	slog.Info("server ready — press Ctrl+C to shut down", "addr", srv.Addr())

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(addr string, reg *registry.Registry) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      arithmos — tool server           ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Listen addr : %-23s ║\n", trim(addr, 23))
	fmt.Printf("║  Version     : %-23s ║\n", trim(version, 23))
	for _, def := range reg.List() {
		fmt.Printf("║  Tool        : %-23s ║\n", trim(def.Name, 23))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func trim(s string, max int) string {
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}

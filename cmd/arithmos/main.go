// Command arithmos answers natural-language arithmetic queries by
// letting a configured decision policy call remote tools.
//
// With -query it answers a single question and exits; without it, it
// starts an interactive prompt reading one query per line.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/arithmos/internal/app"
	"github.com/MrWong99/arithmos/internal/config"
	"github.com/MrWong99/arithmos/internal/observe"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	query := flag.String("query", "", "answer a single query and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "arithmos: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "arithmos: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Orchestrator.LogLevel.Slog(),
	}))
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "arithmos",
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

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	printStartupSummary(cfg, application)

	// ── Single query mode ─────────────────────────────────────────────────────
	if *query != "" {
		answer, err := application.RunQuery(ctx, *query)
		if err != nil {
			slog.Error("query failed", "err", err)
			return 1
		}
		fmt.Println(answer)
		return 0
	}

	// ── Interactive mode ──────────────────────────────────────────────────────
	return repl(ctx, application)
}

// repl reads one query per line from stdin until EOF or cancellation.
func repl(ctx context.Context, application *app.App) int {
	fmt.Println("enter a query per line; Ctrl+D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("› ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		answer, err := application.RunQuery(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(answer)
	}
	if err := scanner.Err(); err != nil {
		slog.Error("stdin read error", "err", err)
		return 1
	}
	fmt.Println("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, application *app.App) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      arithmos — tool client           ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	policyLine := cfg.Policy.Name
	if cfg.Policy.Model != "" {
		policyLine += " / " + cfg.Policy.Model
	}
	fmt.Printf("║  Policy      : %-23s ║\n", trim(policyLine, 23))
	fmt.Printf("║  Namespaces  : %-23d ║\n", len(cfg.Namespaces))
	for _, tool := range application.Tools() {
		fmt.Printf("║  Tool        : %-23s ║\n", trim(tool.Namespace+"/"+tool.Definition.Name, 23))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func trim(s string, max int) string {
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}

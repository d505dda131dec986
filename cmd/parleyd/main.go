// Parleyd is a multi-provider conversational AI backend.
//
// It exposes a JSON chat API (HTTP and websocket) in front of one or
// more AI providers, maintains per-conversation session state with
// automatic history compaction, and runs a bounded tool-calling loop
// for requests that enable tools. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	parleyd serve            Start the API server
//	parleyd ask <question>   Ask a single question (for testing)
//	parleyd version          Print version and build information
//	parleyd -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ndelin/parley/internal/agent"
	"github.com/ndelin/parley/internal/api"
	"github.com/ndelin/parley/internal/archive"
	"github.com/ndelin/parley/internal/buildinfo"
	"github.com/ndelin/parley/internal/compact"
	"github.com/ndelin/parley/internal/config"
	"github.com/ndelin/parley/internal/llm"
	"github.com/ndelin/parley/internal/search"
	"github.com/ndelin/parley/internal/tools"
	"github.com/ndelin/parley/internal/usage"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run], keeping os.Exit and os.Args out of
// the application logic so the lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the parleyd command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: parleyd ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Parley - Multi-Provider Conversational AI Backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: parleyd [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./parley.yaml, ~/.config/parley/parley.yaml, /etc/parley/parley.yaml")
	return nil
}

// runAsk boots a minimal orchestrator (no archive, no usage store, no
// tools) and processes a single question, printing the reply to stdout.
// Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	llms := llm.NewRegistry(cfg.Providers, logger)

	orch := agent.New(llms, agent.Options{
		Compactor: compact.New(cfg.Session.CompactionThreshold, logger),
		Defaults:  cfg.Defaults,
		Logger:    logger,
	})

	result := orch.Handle(ctx, agent.Request{
		Conversation: "cli",
		Text:         strings.Join(args, " "),
	})
	if result.Status != agent.StatusSuccess {
		return fmt.Errorf("ask: %s", result.Error)
	}

	fmt.Fprintln(stdout, result.Text)
	return nil
}

// runServe is the primary operating mode: load config, open the data
// stores, assemble the orchestrator with its tools and search backend,
// start the HTTP server, and block until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting parleyd", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	addr := net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
	logger.Info("config loaded",
		"path", cfgPath,
		"listen", addr,
		"provider", cfg.Defaults.Provider,
		"model", cfg.Defaults.Model,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- AI backends ---
	llms := llm.NewRegistry(cfg.Providers, logger)
	if len(llms.Providers()) == 0 {
		return errors.New("no AI providers configured")
	}
	logger.Info("providers configured", "providers", llms.Providers())

	// --- Transcript archive ---
	// Immutable record of every user/assistant exchange. Survives
	// restarts and compaction (summaries replace compacted rows).
	archiveStore, err := archive.Open("sqlite3", cfg.DataDir+"/parley.db")
	if err != nil {
		return fmt.Errorf("open archive store: %w", err)
	}
	defer archiveStore.Close()
	logger.Info("archive store opened", "path", cfg.DataDir+"/parley.db")

	// --- Usage accounting ---
	usageStore, err := usage.Open("sqlite3", cfg.DataDir+"/usage.db")
	if err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}
	defer usageStore.Close()

	// --- Tools ---
	toolRegistry := tools.NewRegistry(cfg.Session.ToolTimeout())
	toolRegistry.Register(tools.NewClockTool())

	var enricher agent.Enricher
	if cfg.Search.SearXNGURL != "" {
		mgr := search.NewManager("searxng")
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNGURL))
		toolRegistry.Register(search.NewTool(mgr))
		logger.Info("web search enabled", "url", cfg.Search.SearXNGURL)

		if cfg.Search.Enrich {
			enricher = search.NewEnricher(mgr, cfg.Search.EnrichLimit)
			logger.Info("context enrichment enabled", "limit", cfg.Search.EnrichLimit)
		}
	}

	// --- Orchestrator ---
	orch := agent.New(llms, agent.Options{
		Compactor:         compact.New(cfg.Session.CompactionThreshold, logger),
		Providers:         []tools.Provider{toolRegistry},
		Archive:           archiveStore,
		Usage:             usageStore,
		Enricher:          enricher,
		Defaults:          cfg.Defaults,
		MaxToolIterations: cfg.Session.MaxToolIterations,
		GenerateTimeout:   cfg.Session.GenerateTimeout(),
		ToolTimeout:       cfg.Session.ToolTimeout(),
		Logger:            logger,
	})

	// --- HTTP server ---
	srv := api.New(addr, orch, usageStore, llms, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		return err
	case <-sigCtx.Done():
	}

	logger.Info("shutdown signal received, draining")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("parleyd stopped", "uptime", buildinfo.Uptime())
	return nil
}

// newLogger creates a structured text logger that writes to w at the
// given level, with trace-level name mapping.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

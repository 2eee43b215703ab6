package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenworks/gemgate/internal/agent"
	"github.com/lumenworks/gemgate/internal/config"
	"github.com/lumenworks/gemgate/internal/contextstore"
	"github.com/lumenworks/gemgate/internal/gateway"
	"github.com/lumenworks/gemgate/internal/gemini"
	"github.com/lumenworks/gemgate/internal/memory"
	"github.com/lumenworks/gemgate/internal/sessions"
	"github.com/lumenworks/gemgate/internal/telemetry"
	"github.com/lumenworks/gemgate/internal/tools"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the WebSocket gateway (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	setupLogging()

	if err := run(); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func run() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Snapshot().APIKey == "" {
		return fmt.Errorf("no API key: set GEMGATE_API_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Snapshot().Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	snap := cfg.Snapshot()

	store, closeStore, err := openSessionStore(snap.Sessions)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer closeStore()

	var opts []sessions.Option
	if snap.Sessions.TTLMinutes > 0 {
		opts = append(opts, sessions.WithTTL(time.Duration(snap.Sessions.TTLMinutes)*time.Minute))
	}
	mgr, err := sessions.NewManager(store, opts...)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}
	defer mgr.Close()

	contexts, err := contextstore.NewDir(config.ExpandHome(snap.Tools.ContextDir))
	if err != nil {
		return fmt.Errorf("context store: %w", err)
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltin(registry, cfg.WorkspacePath()); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	client := gemini.NewClient()
	executor := tools.NewExecutor(registry, tools.ExecConfig{
		Concurrency:    snap.Tools.MaxConcurrency,
		PerToolTimeout: time.Duration(snap.Tools.TimeoutSec) * time.Second,
	})
	orch := agent.NewOrchestrator(client, registry, executor, tools.NewCompactor(contexts))
	compactor := memory.NewCompactor(client, snap.Agent.ContextWindow)

	engine := gateway.NewEngine(cfg, mgr, orch, compactor, registry)
	server := gateway.NewServer(cfg, mgr, engine)

	// Hot reload only applies when the config file exists on disk.
	if _, statErr := os.Stat(cfgPath); statErr == nil {
		stopWatch, watchErr := config.Watch(ctx, cfg, cfgPath)
		if watchErr != nil {
			slog.Warn("config watch disabled", "error", watchErr)
		} else {
			defer stopWatch()
		}
	}

	slog.Info("gemgate starting",
		"version", Version,
		"model", snap.Agent.Model,
		"tools", registry.Len(),
		"config", cfgPath)

	return server.Start(ctx)
}

// openSessionStore picks the persistence backend. The json backend
// writes one file per session; sqlite keeps everything in one database
// file next to it.
func openSessionStore(cfg config.SessionsConfig) (sessions.Store, func(), error) {
	dir := config.ExpandHome(cfg.Storage)
	switch cfg.Backend {
	case "", "json":
		s, err := sessions.NewDirStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "sqlite":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
		s, err := sessions.NewSQLiteStore(filepath.Join(dir, "sessions.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sessions backend %q", cfg.Backend)
	}
}

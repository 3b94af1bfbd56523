package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/mado/internal/app"
	"github.com/ashita-ai/mado/internal/config"
	"github.com/ashita-ai/mado/internal/host"
	"github.com/ashita-ai/mado/internal/storage"
	"github.com/ashita-ai/mado/internal/telemetry"
	"github.com/ashita-ai/mado/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("MADO_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal).
	envFile := os.Getenv("MADO_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("env file not loaded", "path", envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("mado starting", "version", version, "addr", cfg.Addr(), "server_disabled", cfg.DisableServer)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Optional invocation audit.
	var audit *storage.DB
	if cfg.AuditDBPath != "" {
		audit, err = storage.Open(ctx, cfg.AuditDBPath, migrations.FS, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer func() { _ = audit.Close() }()
		logger.Info("audit: enabled", "path", cfg.AuditDBPath)
	} else {
		logger.Info("audit: disabled (no MADO_AUDIT_DB)")
	}

	// The bundled host: a frame loop pinned to one OS thread.
	h, err := host.NewLocalHost(host.LocalConfig{
		ProjectName:  cfg.ProjectName,
		SavedDir:     cfg.SavedDir,
		TickInterval: cfg.TickInterval,
		Interpreter:  host.ShellInterpreter{Shell: cfg.Shell},
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}
	defer func() { _ = h.Close() }()

	hostCtx, stopHost := context.WithCancel(context.Background())
	hostDone := make(chan struct{})
	go func() {
		defer close(hostDone)
		_ = h.Run(hostCtx)
	}()

	lc := app.NewLifecycle(app.Deps{
		Host:        h,
		Interpreter: h,
		Audit:       audit,
		Logger:      logger,
		Version:     version,
	}, cfg.OTELEndpoint != "")

	// A bind failure is logged and the host keeps running.
	if err := lc.Start(cfg); err != nil {
		logger.Warn("continuing without http server", "error", err)
	}

	reload := func(trigger string) { _ = lc.Reload(envFile, trigger) }
	go app.WatchSignals(ctx, reload)
	if cfg.WatchEnv {
		w := app.FileWatch{Path: envFile, Debounce: cfg.ReloadDebounce, Logger: logger}
		go w.Run(ctx, reload)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Order: stop accepting requests and unregister the bridge while the
	// host loop is still pumping, then stop the loop.
	lc.Stop()
	stopHost()
	<-hostDone

	logger.Info("mado stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/use-agent/recoveryfinder/api"
	"github.com/use-agent/recoveryfinder/browser"
	"github.com/use-agent/recoveryfinder/config"
	"github.com/use-agent/recoveryfinder/diagnostics"
	"github.com/use-agent/recoveryfinder/orchestrator"
	"github.com/use-agent/recoveryfinder/sink"
	"github.com/use-agent/recoveryfinder/site"
	"github.com/use-agent/recoveryfinder/webhook"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── 1. Load configuration ───────────────────────────────────────
	envErr := godotenv.Load()
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if envErr != nil {
		slog.Debug("no .env file found")
	}
	if err := site.Validate(); err != nil {
		slog.Error("invalid site locators", "error", err)
		return 1
	}

	runID := uuid.NewString()
	slog.Info("recoveryfinder starting",
		"run_id", runID,
		"entry", cfg.Search.EntryURL,
		"max_rows", cfg.Extract.MaxRows,
		"output", cfg.Output.CSVPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Open outputs ─────────────────────────────────────────────
	out, err := openSinks(ctx, cfg.Output, runID)
	if err != nil {
		slog.Error("failed to open output", "error", err)
		return 1
	}

	// ── 4. Wire the run ─────────────────────────────────────────────
	snapshots := diagnostics.NewStore(cfg.Output.SnapshotDir)
	slog.Debug("failure snapshots enabled", "dir", snapshots.Dir())
	runner := orchestrator.New(runID, cfg, browser.NewRodLauncher(), out, snapshots)

	// ── 5. Optional status server ───────────────────────────────────
	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: api.NewRouter(runner.Progress(), cfg, time.Now()),
		}
		go func() {
			slog.Info("status server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status server error", "error", err)
			}
		}()
		defer shutdown(srv)
	}

	// ── 6. Run ──────────────────────────────────────────────────────
	status, runErr := runner.Run(ctx)

	// ── 7. Notify ───────────────────────────────────────────────────
	notifier := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret)
	if err := notifier.Notify(context.WithoutCancel(ctx), webhook.NewRunEvent(status)); err != nil {
		slog.Error("webhook delivery failed", "error", err)
	}

	if runErr != nil {
		return 1
	}
	slog.Info("recoveryfinder stopped", "records", status.Processed, "output", cfg.Output.CSVPath)
	return 0
}

// openSinks opens the CSV file and any configured secondary outputs.
func openSinks(ctx context.Context, cfg config.OutputConfig, runID string) (sink.Sink, error) {
	primary, err := sink.OpenCSV(cfg.CSVPath)
	if err != nil {
		return nil, err
	}

	var secondaries []sink.Sink
	if cfg.SQLitePath != "" {
		db, err := sink.OpenSQLite(cfg.SQLitePath, runID)
		if err != nil {
			slog.Warn("sqlite output disabled", "path", cfg.SQLitePath, "error", err)
		} else {
			secondaries = append(secondaries, db)
		}
	}
	if cfg.RedisAddr != "" {
		secondaries = append(secondaries, sink.NewRedisStream(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, runID))
	}

	if len(secondaries) == 0 {
		return primary, nil
	}
	return sink.NewFanout(primary, secondaries...), nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("status server forced shutdown", "error", err)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

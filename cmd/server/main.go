// Command server runs the notebook execution kernel: an HTTP API that
// executes JavaScript cells in per-notebook sessions with persistent
// variable state, and streams results back over Server-Sent Events.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lunalab/luna-kernel/internal/auth"
	"github.com/lunalab/luna-kernel/internal/repository"
	"github.com/lunalab/luna-kernel/internal/repository/sqlite"
	"github.com/lunalab/luna-kernel/internal/server"
	"github.com/lunalab/luna-kernel/internal/service"
	"github.com/lunalab/luna-kernel/internal/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	port := envInt("PORT", 8080)

	sessCfg := session.DefaultConfig()
	if d, ok := envDuration("EXEC_TIMEOUT"); ok {
		sessCfg.ExecTimeout = d
	}
	if d, ok := envDuration("EXEC_GRACE"); ok {
		sessCfg.Grace = d
	}

	// History is opt-in: without DB_PATH nothing is persisted and the
	// history endpoints return 403.
	var history repository.ExecutionHistoryRepository
	var db *sqlite.DB
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		var err error
		db, err = sqlite.New(dbPath)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer db.Close()
		history = db
		logger.Info("execution history enabled", slog.String("path", dbPath))
	}

	// Auth is opt-in too: both the signing secret and the password hash
	// must be set, or the API runs open (bind to localhost in that case).
	var tokens *auth.TokenService
	var passwords *auth.PasswordService
	secret := os.Getenv("KERNEL_SECRET")
	passwordHash := os.Getenv("KERNEL_PASSWORD_HASH")
	if secret != "" || passwordHash != "" {
		if secret == "" || passwordHash == "" {
			return fmt.Errorf("KERNEL_SECRET and KERNEL_PASSWORD_HASH must be set together")
		}
		var err error
		tokens, err = auth.NewTokenService(secret)
		if err != nil {
			return fmt.Errorf("configuring token service: %w", err)
		}
		passwords, err = auth.NewPasswordService(passwordHash)
		if err != nil {
			return fmt.Errorf("configuring password service: %w", err)
		}
		logger.Info("authentication enabled")
	}

	svc := service.NewNotebookService(sessCfg, history, logger)

	srv := server.New(server.Config{
		Port:      port,
		Service:   svc,
		Tokens:    tokens,
		Passwords: passwords,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("received signal", slog.String("signal", sig.String()))
	}

	// Give draining sessions a bounded window. Stuck executions are
	// force-terminated by their own watchdogs well inside this.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer", slog.String("var", key), slog.String("value", v))
	}
	return fallback
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration", slog.String("var", key), slog.String("value", v))
		return 0, false
	}
	return d, true
}

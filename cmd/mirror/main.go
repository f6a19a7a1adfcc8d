package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"tootkeeper/internal/collector"
	"tootkeeper/internal/config"
	"tootkeeper/internal/media"
	"tootkeeper/internal/scheduler"
	"tootkeeper/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	for _, dir := range []string{filepath.Dir(cfg.DatabasePath), cfg.MediaPath} {
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := seedCredentials(ctx, store, cfg, log); err != nil {
		log.Error("seed credentials", "error", err)
		os.Exit(1)
	}

	mf := media.New(cfg.MediaPath, nil, log)
	coll := collector.New(store, mf, cfg, log)

	sched := scheduler.New(coll, log)
	sched.SetTickInterval(cfg.PollInterval)

	log.Info("starting mirror", "database", cfg.DatabasePath, "interval", cfg.PollInterval)

	sched.Run(ctx)

	log.Info("mirror stopped")
}

// seedCredentials copies credentials from the environment into the settings
// store on first start. Settings already present in the store win.
func seedCredentials(ctx context.Context, store storage.Storage, cfg *config.Config, log *slog.Logger) error {
	configured, err := store.IsConfigured(ctx)
	if err != nil {
		return err
	}
	if configured || cfg.Instance == "" || cfg.AccessToken == "" {
		return nil
	}

	if err := store.SetSetting(ctx, "instance_url", cfg.Instance); err != nil {
		return err
	}
	if err := store.SetSetting(ctx, "access_token", cfg.AccessToken); err != nil {
		return err
	}
	log.Info("imported credentials from environment", "instance", cfg.Instance)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

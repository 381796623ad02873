package main

import (
	"log/slog"
	"os"

	"tabula/internal/config"
	"tabula/internal/infra/db"
	httpinfra "tabula/internal/infra/http"
)

func main() {
	cfg := config.FromEnv()
	setupLogger(cfg.LogLevel)

	store, err := db.NewStore(cfg)
	if err != nil {
		slog.Error("failed to init store", "error", err)
		os.Exit(1)
	}
	if store.DB != nil {
		if err := store.AutoMigrate(); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	srv := httpinfra.NewServer(cfg, store)
	slog.Info("tabulad listening", "addr", cfg.HTTPAddr)
	if err := srv.Run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

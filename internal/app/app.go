// Package app wires the store, notifier and engine from a Config and tears
// them down in reverse order.
package app

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/engine"
	"ideaforge/internal/events"
	"ideaforge/internal/migrate"
	"ideaforge/internal/repo"
)

// App owns every long-lived component of a running process.
type App struct {
	Config     *config.Config
	DB         *sql.DB
	Logger     *slog.Logger
	Dispatcher *events.Dispatcher
	Engine     engine.Engine
}

// Open opens and migrates the store, then builds the dispatcher and engine.
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Path: cfg.Storage.Path})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	dispatcher := events.NewDispatcher(events.DispatcherConfig{
		Source:    repo.Repo{DB: conn},
		Logger:    logger.With("component", "webhooks"),
		Workers:   cfg.Webhooks.Workers,
		QueueSize: cfg.Webhooks.QueueSize,
		UserAgent: cfg.Webhooks.UserAgent,
	})
	eng := engine.New(conn, engine.Options{
		Notifier:  dispatcher,
		Logger:    logger.With("component", "engine"),
		PublicURL: cfg.Server.PublicURL,
		PageSize:  cfg.Limits.DefaultPageSize,
		MaxPage:   cfg.Limits.MaxPageSize,
	})
	return &App{Config: cfg, DB: conn, Logger: logger, Dispatcher: dispatcher, Engine: eng}, nil
}

// Close drains pending webhook deliveries before closing the store they
// read subscriptions from.
func (a *App) Close() error {
	a.Dispatcher.Close()
	return a.DB.Close()
}

// NewLogger builds the process logger from the log section of cfg.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "text"
	if cfg != nil {
		switch strings.ToLower(cfg.Log.Level) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		format = cfg.Log.Format
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

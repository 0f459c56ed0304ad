// Package app wires the daemon together: config, logger, tracking store,
// session aggregator, and the loopback server, the same way
// internal/daemon/daemon.go assembles wingthing's store, timeline engine,
// and transport server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/timhq/tim-agent-core/internal/config"
	"github.com/timhq/tim-agent-core/internal/events"
	"github.com/timhq/tim-agent-core/internal/logger"
	"github.com/timhq/tim-agent-core/internal/notify"
	"github.com/timhq/tim-agent-core/internal/server"
	"github.com/timhq/tim-agent-core/internal/session"
	"github.com/timhq/tim-agent-core/internal/tracking"
)

// App is the fully wired daemon: a session aggregator fed by the loopback
// server's WebSocket traffic, and a tracking store refreshed on a timer.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Aggregator *session.Aggregator
	Tracking   *tracking.Store
	Server     *server.Server

	stopWatch func() error
}

// New assembles every component but does not start any goroutines or
// network listeners — call Start for that.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var notifier notify.Sink = notify.NewLogSink(logger)
	if cfg.NotificationsEnabled && cfg.NtfyTopic != "" {
		notifier = notify.NewNtfyPush(cfg.NtfyTopic, cfg.NtfyToken, logger)
	}

	agg := session.New(notifier)

	dbPath := cfg.DBPath
	if dbPath == "" {
		path, err := tracking.DatabasePath()
		if err != nil {
			return nil, fmt.Errorf("resolve tracking db path: %w", err)
		}
		dbPath = path
	}
	store := tracking.New(dbPath, logger, cfg.RefreshInterval())

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Aggregator: agg,
		Tracking:   store,
	}

	handlers := server.Handlers{
		Notification:   agg.IngestNotification,
		WSMessage:      a.handleWSMessage,
		WSConnected:    func(connID string) {},
		WSDisconnected: agg.MarkDisconnected,
	}
	srv := server.New(cfg.Port, handlers, logger)
	agg.SetSendHook(srv.Send)
	a.Server = srv

	return a, nil
}

// handleWSMessage decodes one text frame from the loopback server and
// routes it to the aggregator.
func (a *App) handleWSMessage(connID string, text string) {
	msg, err := events.DecodeHeadlessMessage([]byte(text))
	if err != nil {
		a.Logger.Warn("app: dropping malformed envelope", "connection_id", connID, "error", err)
		return
	}

	switch msg.Type {
	case events.TypeSessionInfo:
		if msg.SessionInfo != nil {
			a.Aggregator.AddSession(connID, *msg.SessionInfo)
		}
	case events.TypeOutput:
		if msg.Output != nil {
			a.Aggregator.HandleOutput(connID, *msg.Output)
		}
	case events.TypeReplayStart:
		a.Aggregator.StartReplay(connID)
	case events.TypeReplayEnd:
		a.Aggregator.EndReplay(connID)
	}
}

// Start binds the loopback server, begins the tracking store's refresh
// loop, and (if cfg came from a file) starts watching it for hot-reload.
// Idempotent at the server level.
func (a *App) Start(ctx context.Context, configPath string) error {
	if err := a.Server.Start(); err != nil {
		return err
	}
	a.Tracking.Start(ctx)

	if configPath != "" {
		stop, err := config.Watch(configPath, a.Logger, a.applyLiveConfig)
		if err != nil {
			a.Logger.Warn("app: config watch disabled", "error", err)
		} else {
			a.stopWatch = stop
		}
	}
	return nil
}

// applyLiveConfig updates the subset of settings safe to change without a
// restart: log level and the tracking store's refresh cadence. Both are
// pushed into the already-running components, not just recorded on Config.
func (a *App) applyLiveConfig(cfg config.Config) {
	a.Config.LogLevel = cfg.LogLevel
	a.Config.RefreshIntervalSecs = cfg.RefreshIntervalSecs
	logger.SetLevel(cfg.LogLevel)
	a.Tracking.SetRefreshInterval(cfg.RefreshInterval())
}

// Stop shuts every component down, giving in-flight connections up to the
// context's deadline to close.
func (a *App) Stop(ctx context.Context) error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	a.Tracking.Stop()
	return a.Server.Stop(ctx)
}

// Package notify provides the OS-notification sink the session aggregator
// calls out to: a single abstract notify(title, body) interface so the
// aggregator never has to know whether a desktop banner, a push service,
// or a log line is behind it.
package notify

import "log/slog"

// Sink delivers one notification. Implementations must not block the
// caller for longer than a best-effort attempt — the aggregator fires
// these from its own mutation path and never waits on them.
type Sink interface {
	Notify(title, body string)
}

// LogSink logs notifications through slog. It's the default sink so the
// aggregator always has somewhere to send banners, even with no desktop
// notifier configured.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink builds a LogSink, defaulting to slog.Default() if logger is nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Notify(title, body string) {
	s.Logger.Info("notification", "title", title, "body", body)
}

package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watch on path and invokes onReload with the
// freshly-parsed Config whenever the file changes. Only a subset of
// settings is safe to change live (log level, refresh interval); callers
// decide which fields they actually act on.
//
// The returned stop func closes the watcher. Errors loading the changed
// file are logged and otherwise ignored — a bad edit shouldn't crash the
// daemon, it just keeps running with the last-good config.
func Watch(path string, logger *slog.Logger, onReload func(Config)) (stop func() error, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config: reload failed", "error", err)
					continue
				}
				logger.Info("config: reloaded", "path", path)
				onReload(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config: watch error", "error", err)
			}
		}
	}()

	return w.Close, nil
}

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watcherDebounce = 500 * time.Millisecond

// Watch calls reload after the config file at path changes. It watches the
// parent directory so editors that replace the file are seen too. It blocks
// until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, reload func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	logger.Info("watching config file for changes", slog.String("file", path))

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("config file changed", slog.String("file", event.Name), slog.String("op", event.Op.String()))

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watcherDebounce, func() {
				if err := reload(ctx); err != nil {
					logger.Error("config reload failed, keeping previous config", slog.String("error", err.Error()))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// Reloader returns a reload function for Watch that re-reads the config with
// the same overrides and stores it in live.
func Reloader(live *Live, overrides Overrides, logger *slog.Logger) func(context.Context) error {
	if overrides.ConfigFile == "" {
		overrides.ConfigFile = live.Current().ConfigFile
	}
	return func(ctx context.Context) error {
		next, err := Load(overrides)
		if err != nil {
			return err
		}
		rotated, err := live.Store(next)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "config reloaded", slog.Bool("rotation_requested", rotated))
		return nil
	}
}

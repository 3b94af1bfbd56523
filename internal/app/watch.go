package app

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"github.com/ashita-ai/mado/internal/config"
)

// DefaultReloadDebounce coalesces editor save bursts into one reload.
const DefaultReloadDebounce = 200 * time.Millisecond

// Reload re-reads envFile into the process environment, reloads the
// configuration and restarts in place. An invalid configuration is logged
// and the running generation is kept.
func (l *Lifecycle) Reload(envFile, trigger string) error {
	if envFile != "" {
		if err := godotenv.Overload(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			l.logger.Error("config reload failed", "trigger", trigger, "error", err)
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		l.logger.Error("config reload failed", "trigger", trigger, "error", err)
		return err
	}
	l.logger.Info("config reloaded", "trigger", trigger)
	return l.Restart(cfg)
}

// WatchSignals calls reload("signal_sighup") on every SIGHUP until ctx is done.
func WatchSignals(ctx context.Context, reload func(trigger string)) {
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hupCh:
			reload("signal_sighup")
		}
	}
}

// FileWatch reloads when one file changes. The parent directory is watched
// so editors that replace the file by rename are seen.
type FileWatch struct {
	Path     string
	Debounce time.Duration // DefaultReloadDebounce when zero
	Logger   *slog.Logger
}

// watchedOps are the changes that can alter the file's contents.
const watchedOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

// Run blocks until ctx is done. Changes arriving within Debounce of each
// other produce a single reload whose trigger names the coalesced operations,
// e.g. "env_file:WRITE|RENAME".
func (w FileWatch) Run(ctx context.Context, reload func(trigger string)) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("env watch disabled", "path", w.Path, "error", err)
		return
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(filepath.Dir(w.Path)); err != nil {
		logger.Warn("env watch disabled", "path", w.Path, "error", err)
		return
	}
	logger.Info("watching env file", "path", w.Path, "debounce", debounce)

	base := filepath.Base(w.Path)
	settle := time.NewTimer(debounce)
	settle.Stop()
	defer settle.Stop()

	var (
		ops    fsnotify.Op
		events int
	)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base || ev.Op&watchedOps == 0 {
				continue
			}
			ops |= ev.Op & watchedOps
			events++
			settle.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("env watch error", "path", w.Path, "error", err)
		case <-settle.C:
			trigger := "env_file:" + ops.String()
			logger.Info("env file changed", "path", w.Path, "op", ops.String(), "events", events)
			ops, events = 0, 0
			if reload != nil {
				reload(trigger)
			}
		}
	}
}

// ABOUTME: Watches the config file and re-applies it on change without a restart
// ABOUTME: Debounces editor write bursts; invalid or unchanged files never reach the apply hook

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the multiple filesystem events editors produce
// for one save, and keeps us from parsing partially written files.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the config file on change and hands every accepted new
// version to the apply hook. A file that fails to parse or validate is
// logged and skipped; the previous config stays in effect. Rewrites that
// do not change the parsed result are not re-applied.
type Watcher struct {
	path   string
	apply  func(*Config)
	logger *slog.Logger

	mu   sync.Mutex
	last *Config
}

// NewWatcher prepares a watcher for the config file at path. Pass the
// currently loaded config so an untouched file is not re-applied on the
// first spurious event. Logger may be nil.
func NewWatcher(path string, current *Config, logger *slog.Logger, apply func(*Config)) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:   path,
		apply:  apply,
		logger: logger.With("component", "config-watcher"),
		last:   current,
	}
}

// Run watches until the context is cancelled. The directory is watched
// rather than the file because atomic-save editors replace the file, which
// would silently kill a file-level watch.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching config file", "path", w.path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	schedule := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounceDelay, func() {
			if ctx.Err() != nil {
				return
			}
			w.reload()
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Compare basenames: event paths may be absolute or relative
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				schedule()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous config",
			"path", w.path,
			"error", err)
		return
	}

	w.mu.Lock()
	unchanged := w.last != nil && reflect.DeepEqual(w.last, cfg)
	if !unchanged {
		w.last = cfg
	}
	w.mu.Unlock()

	if unchanged {
		w.logger.Debug("config unchanged, skipping reload", "path", w.path)
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	w.apply(cfg)
}

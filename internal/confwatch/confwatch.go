// Package confwatch reloads runtime-adjustable settings when the .env file changes.
package confwatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mstimer/mstimer-server/internal/config"
	"github.com/mstimer/mstimer-server/internal/logger"
)

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// LevelSetter receives the new log level.
type LevelSetter interface {
	Level() slog.Level
	SetLevel(level slog.Level)
}

// Watcher applies LOG_LEVEL from an .env file whenever the file is written.
type Watcher struct {
	path     string
	levels   LevelSetter
	logger   *slog.Logger
	debounce time.Duration

	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	wait     *time.Timer
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
	wg       sync.WaitGroup
}

// New creates a watcher for path. The parent directory is watched so that
// editors replacing the file by rename are still seen.
func New(path string, levels LevelSetter, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	path = filepath.Clean(path)
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     path,
		levels:   levels,
		logger:   logger,
		debounce: DefaultDebounce,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start processes file events until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop releases the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		w.stopErr = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		if w.wait != nil {
			w.wait.Stop()
		}
		w.mu.Unlock()
	})
	return w.stopErr
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.wait != nil {
		w.wait.Reset(w.debounce)
		return
	}
	w.wait = time.AfterFunc(w.debounce, w.Reload)
}

// Reload reads the file and applies its LOG_LEVEL, if any.
func (w *Watcher) Reload() {
	values, err := config.ReadEnvFile(w.path)
	if err != nil {
		w.logger.Warn("failed to reload env file", "path", w.path, "error", err)
		return
	}

	raw, ok := values["LOG_LEVEL"]
	if !ok {
		return
	}

	level := logger.ParseLevel(raw)
	if level == w.levels.Level() {
		return
	}
	w.levels.SetLevel(level)
	w.logger.Info("log level changed", "level", level.String())
}

package providers

import (
	"context"
	"os"

	"github.com/samber/do/v2"

	"github.com/mstimer/mstimer-server/internal/config"
	"github.com/mstimer/mstimer-server/internal/confwatch"
	"github.com/mstimer/mstimer-server/internal/logger"
)

// ConfigWatcherHandle wraps the .env watcher with Shutdownable.
// Watcher is nil when no .env file exists.
type ConfigWatcherHandle struct {
	Watcher *confwatch.Watcher
	cancel  context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ConfigWatcherHandle) Shutdown() error {
	h.cancel()
	if h.Watcher == nil {
		return nil
	}
	return h.Watcher.Stop()
}

// ProvideConfigWatcher watches the .env file and applies LOG_LEVEL changes at runtime.
func ProvideConfigWatcher(i do.Injector) (*ConfigWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())
	handle := &ConfigWatcherHandle{cancel: cancel}

	if cfg.App.EnvFile == "" {
		return handle, nil
	}
	if _, err := os.Stat(cfg.App.EnvFile); err != nil {
		log.Debug("No .env file to watch", "path", cfg.App.EnvFile)
		return handle, nil
	}

	watcher, err := confwatch.New(cfg.App.EnvFile, log, log.Component("confwatch"))
	if err != nil {
		// Non-fatal: the server runs without live log level changes.
		log.Warn("Failed to watch .env file", "path", cfg.App.EnvFile, "error", err)
		return handle, nil
	}
	watcher.Start(ctx)
	handle.Watcher = watcher

	log.Info("Watching .env for log level changes", "path", cfg.App.EnvFile)

	return handle, nil
}

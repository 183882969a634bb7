package providers

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/mstimer/mstimer-server/internal/config"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/sse"
	"github.com/mstimer/mstimer-server/internal/store"
	"github.com/mstimer/mstimer-server/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse"))

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the key-value store with shutdown capability.
type StoreHandle struct {
	store.KeyValue
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured backend. Changes are relayed to the SSE manager.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	path := cfg.StorePath()
	storeLog := log.Component("store")

	var (
		kv  store.KeyValue
		err error
	)
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		kv, err = sqlite.Open(path, storeLog, sseHandle.Manager)
	default:
		kv, err = store.New(path, storeLog, sseHandle.Manager)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Store initialized", "backend", cfg.Store.Backend, "path", path)

	return &StoreHandle{KeyValue: kv}, nil
}

// ProvideSlogLogger provides access to the underlying slog.Logger for packages that need it.
func ProvideSlogLogger(i do.Injector) (*slog.Logger, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return log.Logger, nil
}

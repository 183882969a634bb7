package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/mstimer/mstimer-server/internal/api"
	"github.com/mstimer/mstimer-server/internal/config"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/metrics"
	"github.com/mstimer/mstimer-server/internal/service"
	"github.com/mstimer/mstimer-server/internal/sse"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	pagesHandle := do.MustInvoke[*PageRegistryHandle](i)
	watchTime := do.MustInvoke[*WatchTimeHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := &api.Services{
		WatchTime: watchTime.WatchTimeService,
		Settings:  do.MustInvoke[*service.SettingsService](i),
		Stats:     do.MustInvoke[*service.StatsService](i),
		Install:   do.MustInvoke[*service.InstallService](i),
		Pages:     pagesHandle.Registry,
	}

	sseHandler := sse.NewHandler(sseHandle.Manager, pagesHandle.Registry, log.Component("sse"))

	handler := api.NewServer(storeHandle.KeyValue, services, api.Options{
		SSEHandler:     sseHandler,
		SSEManager:     sseHandle.Manager,
		MetricsHandler: m.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log.Component("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}

package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/mstimer/mstimer-server/internal/api"
	"github.com/mstimer/mstimer-server/internal/config"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/metrics"
	"github.com/mstimer/mstimer-server/internal/service"
	"github.com/mstimer/mstimer-server/internal/validation"
)

// WatchTimeHandle wraps the watch-time coordinator with Shutdownable.
type WatchTimeHandle struct {
	*service.WatchTimeService
}

// Shutdown implements do.Shutdownable. Queued increments are applied first.
func (h *WatchTimeHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.WatchTimeService.Shutdown(ctx)
}

// ProvideWatchTimeService provides the single-writer watch-time coordinator.
func ProvideWatchTimeService(i do.Injector) (*WatchTimeHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewWatchTimeService(storeHandle.KeyValue, validation.New(), cfg.Tracking.MaxDelta, log.Component("coordinator"))
	svc.SetRecorder(m)
	svc.Start()

	log.Info("Watch-time coordinator started", "max_delta", cfg.Tracking.MaxDelta)

	return &WatchTimeHandle{WatchTimeService: svc}, nil
}

// ProvideSettingsService provides the display settings service.
func ProvideSettingsService(i do.Injector) (*service.SettingsService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSettingsService(storeHandle.KeyValue, log.Component("settings")), nil
}

// ProvideStatsService provides the statistics service.
func ProvideStatsService(i do.Injector) (*service.StatsService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return service.NewStatsService(storeHandle.KeyValue), nil
}

// ProvideInstallService provides the install service and seeds the store defaults.
func ProvideInstallService(i do.Injector) (*service.InstallService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewInstallService(storeHandle.KeyValue, api.Version, log.Component("install"))

	installation, err := svc.OnInstalled(context.Background())
	if err != nil {
		return nil, err
	}

	log.Info("Store ready",
		"installation_id", installation.ID,
		"installed_at", installation.InstalledAt,
		"version", installation.Version,
	)

	return svc, nil
}

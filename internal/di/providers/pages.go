package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/mstimer/mstimer-server/internal/auth"
	"github.com/mstimer/mstimer-server/internal/config"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/metrics"
	"github.com/mstimer/mstimer-server/internal/page"
	"github.com/mstimer/mstimer-server/internal/player"
	"github.com/mstimer/mstimer-server/internal/service"
)

// PageRegistryHandle wraps the page registry with Shutdownable.
type PageRegistryHandle struct {
	*page.Registry
}

// Shutdown implements do.Shutdownable. Every page is detached, which flushes
// playing sessions to the coordinator.
func (h *PageRegistryHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Close(ctx)
}

// ProvidePageRegistry provides the registry of attached pages.
func ProvidePageRegistry(i do.Injector) (*PageRegistryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	watchTime := do.MustInvoke[*WatchTimeHandle](i)
	settings := do.MustInvoke[*service.SettingsService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	registry := page.NewRegistry(page.Options{
		Tokens:      tokens,
		Sender:      watchTime.WatchTimeService,
		Preferences: settings,
		Emitter:     sseHandle.Manager,
		Timing: player.Timing{
			SearchInterval:  cfg.Tracking.SearchInterval,
			SearchTimeout:   cfg.Tracking.SearchTimeout,
			SettleDelay:     cfg.Tracking.SettleDelay,
			RefreshInterval: cfg.Tracking.RefreshInterval,
			TickInterval:    cfg.Tracking.TickInterval,
			MaxDelta:        cfg.Tracking.MaxDelta,
		},
		IdleTimeout: cfg.Tracking.PageIdleTimeout,
		EventRate:   float64(cfg.Tracking.PageEventRate),
		EventBurst:  cfg.Tracking.PageEventBurst,
		Logger:      log.Component("pages"),
		Recorder:    m,
	})

	return &PageRegistryHandle{Registry: registry}, nil
}

// PageReaperJob detaches pages that stopped reporting events.
type PageReaperJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *PageReaperJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvidePageReaperJob starts the idle page reaper.
func ProvidePageReaperJob(i do.Injector) (*PageReaperJob, error) {
	cfg := do.MustInvoke[*config.Config](i)
	registry := do.MustInvoke[*PageRegistryHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())
	go registry.RunReaper(ctx)

	log.Info("Page reaper started", "idle_timeout", cfg.Tracking.PageIdleTimeout)

	return &PageReaperJob{cancel: cancel}, nil
}

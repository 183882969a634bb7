// Package di provides dependency injection configuration for the timer server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/mstimer/mstimer-server/internal/auth"
	"github.com/mstimer/mstimer-server/internal/config"
	"github.com/mstimer/mstimer-server/internal/di/providers"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/metrics"
	"github.com/mstimer/mstimer-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideConfigWatcher)

	// Store layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideStore)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideWatchTimeService)
	do.Provide(injector, providers.ProvideSettingsService)
	do.Provide(injector, providers.ProvideStatsService)
	do.Provide(injector, providers.ProvideInstallService)

	// Pages
	do.Provide(injector, providers.ProvidePageRegistry)
	do.Provide(injector, providers.ProvidePageReaperJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services in dependency order.
// Store defaults are seeded before the HTTP server accepts requests.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.ConfigWatcherHandle](injector)
	if _, err := do.Invoke[providers.AuthKey](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*metrics.Metrics](injector)
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*providers.WatchTimeHandle](injector)
	_ = do.MustInvoke[*service.SettingsService](injector)
	_ = do.MustInvoke[*service.StatsService](injector)
	if _, err := do.Invoke[*service.InstallService](injector); err != nil {
		return err
	}

	// Pages
	_ = do.MustInvoke[*providers.PageRegistryHandle](injector)
	_ = do.MustInvoke[*providers.PageReaperJob](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/store"
)

// InstallService seeds the store on first start and performs resets.
type InstallService struct {
	store   store.KeyValue
	version string
	logger  *slog.Logger
	now     func() time.Time
}

// NewInstallService creates a new install service.
func NewInstallService(kv store.KeyValue, version string, logger *slog.Logger) *InstallService {
	return &InstallService{
		store:   kv,
		version: version,
		logger:  logger,
		now:     time.Now,
	}
}

// OnInstalled writes totalWatchTime=0, showMilliseconds=true and an
// installation record for every key that is absent. Existing values are kept.
func (s *InstallService) OnInstalled(ctx context.Context) (domain.Installation, error) {
	candidate := domain.Installation{
		InstalledAt: s.now().UTC(),
		ID:          uuid.NewString(),
		Version:     s.version,
	}

	written, err := s.store.SetDefaults(ctx, map[string]any{
		domain.KeyTotalWatchTime:   0,
		domain.KeyShowMilliseconds: domain.DefaultShowMilliseconds,
		domain.KeyInstallation:     candidate,
	})
	if err != nil {
		return domain.Installation{}, fmt.Errorf("seed defaults: %w", err)
	}
	if len(written) > 0 {
		s.logger.Info("seeded defaults", "keys", written)
	}

	var installation domain.Installation
	if _, err := s.store.Get(ctx, domain.KeyInstallation, &installation); err != nil {
		return domain.Installation{}, fmt.Errorf("get installation: %w", err)
	}
	return installation, nil
}

// Reset clears the store and writes totalWatchTime=0 back in one
// transaction. The current showMilliseconds value and the installation
// record survive the reset; an increment committed concurrently is either
// wiped with the rest or applied on top of the zero.
func (s *InstallService) Reset(ctx context.Context) error {
	err := s.store.Reset(ctx,
		[]string{domain.KeyShowMilliseconds, domain.KeyInstallation},
		map[string]any{
			domain.KeyTotalWatchTime:   0,
			domain.KeyShowMilliseconds: domain.DefaultShowMilliseconds,
		})
	if err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	s.logger.Info("statistics reset")
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/store"
)

// SettingsService manages the display preferences.
type SettingsService struct {
	store  store.KeyValue
	logger *slog.Logger
}

// NewSettingsService creates a new settings service.
func NewSettingsService(kv store.KeyValue, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		store:  kv,
		logger: logger,
	}
}

// Preferences returns the stored preferences, with defaults for absent keys.
func (s *SettingsService) Preferences(ctx context.Context) (domain.Preferences, error) {
	prefs := domain.DefaultPreferences()
	if _, err := s.store.Get(ctx, domain.KeyShowMilliseconds, &prefs.ShowMilliseconds); err != nil {
		return domain.DefaultPreferences(), fmt.Errorf("get preferences: %w", err)
	}
	return prefs, nil
}

// SetShowMilliseconds stores the preference. Subscribers are notified by the store.
func (s *SettingsService) SetShowMilliseconds(ctx context.Context, show bool) (domain.Preferences, error) {
	if err := s.store.Set(ctx, map[string]any{domain.KeyShowMilliseconds: show}); err != nil {
		return domain.Preferences{}, fmt.Errorf("set show milliseconds: %w", err)
	}
	s.logger.Info("display preference updated", "show_milliseconds", show)
	return domain.Preferences{ShowMilliseconds: show}, nil
}

// ShowMilliseconds returns the current preference value.
func (s *SettingsService) ShowMilliseconds(ctx context.Context) (bool, error) {
	prefs, err := s.Preferences(ctx)
	return prefs.ShowMilliseconds, err
}

// Subscribe streams new showMilliseconds values. Only the latest value is
// kept for a slow reader. Removals are not reported; a reset writes the
// value back right after clearing.
func (s *SettingsService) Subscribe() (<-chan bool, func()) {
	sub := s.store.Subscribe()
	out := make(chan bool, 1)

	go func() {
		defer close(out)
		for change := range sub.C {
			if change.Key != domain.KeyShowMilliseconds {
				continue
			}
			var show bool
			if !change.DecodeNew(&show) {
				continue
			}
			select {
			case out <- show:
			default:
				select {
				case <-out:
				default:
				}
				out <- show
			}
		}
	}()

	return out, sub.Close
}

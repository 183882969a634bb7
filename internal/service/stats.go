package service

import (
	"context"
	"fmt"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/store"
	"github.com/mstimer/mstimer-server/internal/timefmt"
)

// StatsService reads the watch-time statistics.
type StatsService struct {
	store store.KeyValue
}

// NewStatsService creates a new stats service.
func NewStatsService(kv store.KeyValue) *StatsService {
	return &StatsService{store: kv}
}

// Stats returns the total and its y/d/h/m/s rendering.
func (s *StatsService) Stats(ctx context.Context) (domain.Stats, error) {
	var total float64
	if _, err := s.store.Get(ctx, domain.KeyTotalWatchTime, &total); err != nil {
		return domain.Stats{}, fmt.Errorf("get total watch time: %w", err)
	}
	if !timefmt.Renderable(total) {
		total = 0
	}
	return domain.Stats{
		TotalWatchTime: total,
		Formatted:      timefmt.FormatTotal(total),
	}, nil
}

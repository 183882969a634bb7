package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mstimer/mstimer-server/internal/domain"
)

func (s *Server) registerStatsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Get watch-time statistics",
		Description: "Returns the accumulated watch time, raw and formatted",
		Tags:        []string{"Stats"},
	}, s.handleGetStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetStats",
		Method:      http.MethodPost,
		Path:        "/api/v1/stats/reset",
		Summary:     "Reset statistics",
		Description: "Clears stored data and sets the total back to zero. The milliseconds preference survives.",
		Tags:        []string{"Stats"},
	}, s.handleResetStats)
}

// StatsOutput wraps the stats response for Huma.
type StatsOutput struct {
	Body domain.Stats
}

func (s *Server) handleGetStats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	stats, err := s.services.Stats.Stats(ctx)
	if err != nil {
		return nil, fail(err)
	}
	return &StatsOutput{Body: stats}, nil
}

func (s *Server) handleResetStats(ctx context.Context, _ *struct{}) (*StatsOutput, error) {
	if err := s.services.Install.Reset(ctx); err != nil {
		return nil, fail(err)
	}
	stats, err := s.services.Stats.Stats(ctx)
	if err != nil {
		return nil, fail(err)
	}
	return &StatsOutput{Body: stats}, nil
}

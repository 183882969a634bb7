package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstimer/mstimer-server/internal/domain"
)

func TestStatsService_EmptyStore(t *testing.T) {
	svc := NewStatsService(setupTestStore(t))

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalWatchTime)
	assert.Equal(t, "0s", stats.Formatted)
}

func TestStatsService_FormatsTotal(t *testing.T) {
	testStore := setupTestStore(t)
	svc := NewStatsService(testStore)
	ctx := context.Background()

	require.NoError(t, testStore.Set(ctx, map[string]any{domain.KeyTotalWatchTime: 86400 + 3600 + 5.75}))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 90005.75, stats.TotalWatchTime, 1e-9)
	assert.Equal(t, "1d 1h 5s", stats.Formatted)
}

func TestStatsService_NegativeTotalRendersZero(t *testing.T) {
	testStore := setupTestStore(t)
	svc := NewStatsService(testStore)
	ctx := context.Background()

	require.NoError(t, testStore.Set(ctx, map[string]any{domain.KeyTotalWatchTime: -5}))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0s", stats.Formatted)
}

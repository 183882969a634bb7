package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/store"
)

func setupTestInstall(t *testing.T) (*InstallService, *SettingsService, *store.Store) {
	t.Helper()
	testStore := setupTestStore(t)
	settings := NewSettingsService(testStore, logger.Discard())
	return NewInstallService(testStore, "1.2.0", logger.Discard()), settings, testStore
}

func TestInstallService_OnInstalledSeedsDefaults(t *testing.T) {
	svc, settings, testStore := setupTestInstall(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	installation, err := svc.OnInstalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", installation.Version)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), installation.InstalledAt)
	_, err = uuid.Parse(installation.ID)
	assert.NoError(t, err)

	var total float64
	found, err := testStore.Get(ctx, domain.KeyTotalWatchTime, &total)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Zero(t, total)

	show, err := settings.ShowMilliseconds(ctx)
	require.NoError(t, err)
	assert.True(t, show)
}

func TestInstallService_OnInstalledKeepsExistingValues(t *testing.T) {
	svc, settings, testStore := setupTestInstall(t)
	ctx := context.Background()

	first, err := svc.OnInstalled(ctx)
	require.NoError(t, err)

	_, err = testStore.Increment(ctx, domain.KeyTotalWatchTime, 42)
	require.NoError(t, err)
	_, err = settings.SetShowMilliseconds(ctx, false)
	require.NoError(t, err)

	second, err := svc.OnInstalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var total float64
	_, err = testStore.Get(ctx, domain.KeyTotalWatchTime, &total)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, total, 1e-9)

	show, err := settings.ShowMilliseconds(ctx)
	require.NoError(t, err)
	assert.False(t, show)
}

func TestInstallService_ResetKeepsPreferenceAndInstallation(t *testing.T) {
	svc, settings, testStore := setupTestInstall(t)
	ctx := context.Background()

	installation, err := svc.OnInstalled(ctx)
	require.NoError(t, err)
	_, err = testStore.Increment(ctx, domain.KeyTotalWatchTime, 7.5)
	require.NoError(t, err)
	_, err = settings.SetShowMilliseconds(ctx, false)
	require.NoError(t, err)
	require.NoError(t, testStore.Set(ctx, map[string]any{"legacy": "x"}))

	require.NoError(t, svc.Reset(ctx))

	var total float64
	found, err := testStore.Get(ctx, domain.KeyTotalWatchTime, &total)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Zero(t, total)

	show, err := settings.ShowMilliseconds(ctx)
	require.NoError(t, err)
	assert.False(t, show)

	var kept domain.Installation
	_, err = testStore.Get(ctx, domain.KeyInstallation, &kept)
	require.NoError(t, err)
	assert.Equal(t, installation.ID, kept.ID)

	found, err = testStore.Get(ctx, "legacy", new(string))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInstallService_ResetNeverLeavesTotalAbsent(t *testing.T) {
	svc, _, testStore := setupTestInstall(t)
	ctx := context.Background()

	_, err := svc.OnInstalled(ctx)
	require.NoError(t, err)
	_, err = testStore.Increment(ctx, domain.KeyTotalWatchTime, 7.5)
	require.NoError(t, err)

	sub := testStore.Subscribe()
	defer sub.Close()

	require.NoError(t, svc.Reset(ctx))
	_, err = testStore.Increment(ctx, domain.KeyTotalWatchTime, 1.5)
	require.NoError(t, err)

	var totals []domain.Change
	for len(totals) < 2 {
		select {
		case c := <-sub.C:
			if c.Key == domain.KeyTotalWatchTime {
				totals = append(totals, c)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for total changes")
		}
	}

	assert.False(t, totals[0].Removed())
	assert.JSONEq(t, "7.5", string(totals[0].OldValue))
	assert.JSONEq(t, "0", string(totals[0].NewValue))
	assert.JSONEq(t, "0", string(totals[1].OldValue))
	assert.JSONEq(t, "1.5", string(totals[1].NewValue))
}

func TestInstallService_ResetOnEmptyStore(t *testing.T) {
	svc, settings, testStore := setupTestInstall(t)
	ctx := context.Background()

	require.NoError(t, svc.Reset(ctx))

	dump, err := testStore.Dump(ctx)
	require.NoError(t, err)
	assert.Len(t, dump, 2)

	show, err := settings.ShowMilliseconds(ctx)
	require.NoError(t, err)
	assert.True(t, show)
}

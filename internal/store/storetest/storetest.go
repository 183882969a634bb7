// Package storetest holds the behavioral tests every store.KeyValue backend must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/store"
)

// Factory opens a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) store.KeyValue

// Run executes the shared suite against backends produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetAbsentKey", func(t *testing.T) { testGetAbsent(t, newStore(t)) })
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, newStore(t)) })
	t.Run("SetDefaultsOnlyFillsAbsent", func(t *testing.T) { testSetDefaults(t, newStore(t)) })
	t.Run("IncrementFromAbsent", func(t *testing.T) { testIncrementFromAbsent(t, newStore(t)) })
	t.Run("IncrementRejectsNonNumber", func(t *testing.T) { testIncrementNonNumber(t, newStore(t)) })
	t.Run("ConcurrentIncrementsAreNotLost", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
	t.Run("ClearRemovesEverything", func(t *testing.T) { testClear(t, newStore(t)) })
	t.Run("ResetKeepsAndReseedsAtomically", func(t *testing.T) { testReset(t, newStore(t)) })
	t.Run("SubscribersSeeChanges", func(t *testing.T) { testSubscribe(t, newStore(t)) })
	t.Run("UnchangedValueIsNotPublished", func(t *testing.T) { testUnchanged(t, newStore(t)) })
	t.Run("ClosedStoreRejectsCalls", func(t *testing.T) { testClosed(t, newStore(t)) })
}

func closeOnCleanup(t *testing.T, s store.KeyValue) {
	t.Cleanup(func() { _ = s.Close() })
}

func testGetAbsent(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)

	var total float64
	found, err := s.Get(context.Background(), domain.KeyTotalWatchTime, &total)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, total)
}

func testSetAndGet(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{
		domain.KeyShowMilliseconds: false,
		domain.KeyTotalWatchTime:   12.5,
	}))

	var show bool
	found, err := s.Get(ctx, domain.KeyShowMilliseconds, &show)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, show)

	dump, err := s.Dump(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, "12.5", string(dump[domain.KeyTotalWatchTime]))
	assert.Len(t, dump, 2)
}

func testSetDefaults(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{domain.KeyShowMilliseconds: false}))

	applied, err := s.SetDefaults(ctx, map[string]any{
		domain.KeyShowMilliseconds: true,
		domain.KeyTotalWatchTime:   0,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.KeyTotalWatchTime}, applied)

	var show bool
	_, err = s.Get(ctx, domain.KeyShowMilliseconds, &show)
	require.NoError(t, err)
	assert.False(t, show, "existing value must survive")
}

func testIncrementFromAbsent(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	total, err := s.Increment(ctx, domain.KeyTotalWatchTime, 1.25)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, total, 1e-9)

	total, err = s.Increment(ctx, domain.KeyTotalWatchTime, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.75, total, 1e-9)

	var stored float64
	_, err = s.Get(ctx, domain.KeyTotalWatchTime, &stored)
	require.NoError(t, err)
	assert.InDelta(t, 1.75, stored, 1e-9)
}

func testIncrementNonNumber(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{domain.KeyTotalWatchTime: "lots"}))

	_, err := s.Increment(ctx, domain.KeyTotalWatchTime, 1)
	assert.ErrorIs(t, err, store.ErrInvalidValue)
}

func testConcurrentIncrements(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_, err := s.Increment(ctx, domain.KeyTotalWatchTime, 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	var total float64
	_, err := s.Get(ctx, domain.KeyTotalWatchTime, &total)
	require.NoError(t, err)
	assert.InDelta(t, float64(workers*perWorker), total, 1e-9)
}

func testClear(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{
		domain.KeyShowMilliseconds: true,
		domain.KeyTotalWatchTime:   100,
	}))
	require.NoError(t, s.Clear(ctx))

	dump, err := s.Dump(ctx)
	require.NoError(t, err)
	assert.Empty(t, dump)
}

func testReset(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{
		domain.KeyShowMilliseconds: false,
		domain.KeyTotalWatchTime:   100,
		"legacy":                   "x",
	}))

	sub := s.Subscribe()
	defer sub.Close()

	require.NoError(t, s.Reset(ctx,
		[]string{domain.KeyShowMilliseconds, domain.KeyInstallation},
		map[string]any{
			domain.KeyShowMilliseconds: true,
			domain.KeyTotalWatchTime:   0,
		}))

	dump, err := s.Dump(ctx)
	require.NoError(t, err)
	require.Len(t, dump, 2)
	assert.JSONEq(t, "false", string(dump[domain.KeyShowMilliseconds]))
	assert.JSONEq(t, "0", string(dump[domain.KeyTotalWatchTime]))

	legacy := receive(t, sub)
	assert.Equal(t, "legacy", legacy.Key)
	assert.True(t, legacy.Removed())

	total := receive(t, sub)
	assert.Equal(t, domain.KeyTotalWatchTime, total.Key)
	assert.JSONEq(t, "100", string(total.OldValue))
	assert.JSONEq(t, "0", string(total.NewValue))
}

func testSubscribe(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	sub := s.Subscribe()
	defer sub.Close()

	_, err := s.Increment(ctx, domain.KeyTotalWatchTime, 2)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, map[string]any{domain.KeyShowMilliseconds: false}))
	require.NoError(t, s.Clear(ctx))

	first := receive(t, sub)
	assert.Equal(t, domain.KeyTotalWatchTime, first.Key)
	assert.Nil(t, first.OldValue)
	assert.JSONEq(t, "2", string(first.NewValue))

	second := receive(t, sub)
	assert.Equal(t, domain.KeyShowMilliseconds, second.Key)
	var show bool
	assert.True(t, second.DecodeNew(&show))
	assert.False(t, show)

	removed := map[string]bool{}
	for range 2 {
		c := receive(t, sub)
		assert.True(t, c.Removed())
		removed[c.Key] = true
	}
	assert.Equal(t, map[string]bool{domain.KeyTotalWatchTime: true, domain.KeyShowMilliseconds: true}, removed)
}

func testUnchanged(t *testing.T, s store.KeyValue) {
	closeOnCleanup(t, s)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{domain.KeyShowMilliseconds: true}))

	sub := s.Subscribe()
	defer sub.Close()

	require.NoError(t, s.Set(ctx, map[string]any{domain.KeyShowMilliseconds: true}))
	require.NoError(t, s.Set(ctx, map[string]any{domain.KeyShowMilliseconds: false}))

	c := receive(t, sub)
	assert.JSONEq(t, "false", string(c.NewValue))
}

func testClosed(t *testing.T, s store.KeyValue) {
	sub := s.Subscribe()
	require.NoError(t, s.Close())

	_, ok := <-sub.C
	assert.False(t, ok, "subscriptions close with the store")

	_, err := s.Increment(context.Background(), domain.KeyTotalWatchTime, 1)
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.NoError(t, s.Close(), "second Close is a no-op")
}

func receive(t *testing.T, sub *store.Subscription) domain.Change {
	t.Helper()
	select {
	case c, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
		return domain.Change{}
	}
}

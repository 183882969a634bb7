package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	testStore, err := store.New(t.TempDir(), logger.Discard(), store.NewNoopEmitter())
	require.NoError(t, err)
	t.Cleanup(func() { _ = testStore.Close() })

	return testStore
}

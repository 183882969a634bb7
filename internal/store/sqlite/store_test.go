package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/store"
	"github.com/mstimer/mstimer-server/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := Open(dbPath, logger, store.NewNoopEmitter())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)
	t.Cleanup(func() { s.Close() })

	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected wal, got %s", journalMode)
	}

	for _, table := range []string{"kv", "schema_version"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestStore_KeyValueContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.KeyValue {
		return newTestStore(t)
	})
}

func TestStore_ReopenKeepsValues(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(dbPath, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Increment(ctx, domain.KeyTotalWatchTime, 4.5); err != nil {
		t.Fatalf("increment: %v", err)
	}
	s.Close()

	s, err = Open(dbPath, nil, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	var total float64
	found, err := s.Get(ctx, domain.KeyTotalWatchTime, &total)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if total != 4.5 {
		t.Errorf("total = %v, want 4.5", total)
	}
}

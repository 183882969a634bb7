// Package sqlite provides the SQLite-backed store.KeyValue implementation.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed persistence for the timer's keys.
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	notifier *store.Notifier
	closed   atomic.Bool

	// writeMu serializes writers so read-modify-write transactions never
	// hit SQLITE_BUSY on lock upgrade and changes publish in commit order.
	writeMu sync.Mutex
}

var _ store.KeyValue = (*Store)(nil)

// Open creates a new SQLite store at the given path.
// It configures WAL mode, sets pragmas, and runs schema migrations.
func Open(path string, logger *slog.Logger, emitter store.EventEmitter) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	logger.Info("SQLite database opened successfully", "path", path)

	return &Store{
		db:       db,
		logger:   logger,
		notifier: store.NewNotifier(logger, emitter),
	}, nil
}

// Close closes the underlying database connection and every subscription.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.notifier.Close()
	return s.db.Close()
}

// Subscribe registers a change listener.
func (s *Store) Subscribe() *store.Subscription {
	return s.notifier.Subscribe()
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Get decodes the value of key into dest.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

// Set writes all values in one transaction.
func (s *Store) Set(ctx context.Context, values map[string]any) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	encoded, err := store.EncodeValues(values)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) ([]domain.Change, error) {
		changes := make([]domain.Change, 0, len(encoded))
		for _, key := range slices.Sorted(maps.Keys(encoded)) {
			old, err := readRaw(ctx, tx, key)
			if err != nil {
				return nil, err
			}
			if err := upsert(ctx, tx, key, encoded[key]); err != nil {
				return nil, err
			}
			changes = append(changes, domain.Change{Key: key, OldValue: old, NewValue: encoded[key]})
		}
		return changes, nil
	})
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

// SetDefaults writes only the keys that are absent.
func (s *Store) SetDefaults(ctx context.Context, values map[string]any) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	encoded, err := store.EncodeValues(values)
	if err != nil {
		return nil, err
	}

	var applied []string
	err = s.withTx(ctx, func(tx *sql.Tx) ([]domain.Change, error) {
		applied = applied[:0]
		var changes []domain.Change
		for _, key := range slices.Sorted(maps.Keys(encoded)) {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
				key, string(encoded[key]), now())
			if err != nil {
				return nil, err
			}
			if n, err := res.RowsAffected(); err != nil {
				return nil, err
			} else if n == 0 {
				continue
			}
			applied = append(applied, key)
			changes = append(changes, domain.Change{Key: key, NewValue: encoded[key]})
		}
		return changes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return applied, nil
}

// Increment adds delta to a numeric key inside one transaction.
func (s *Store) Increment(ctx context.Context, key string, delta float64) (float64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	var total float64
	err := s.withTx(ctx, func(tx *sql.Tx) ([]domain.Change, error) {
		old, err := readRaw(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		current, err := store.DecodeNumber(old)
		if err != nil {
			return nil, err
		}
		total = current + delta

		data, err := json.Marshal(total)
		if err != nil {
			return nil, store.ErrInvalidValue.WithCause(err)
		}
		if err := upsert(ctx, tx, key, data); err != nil {
			return nil, err
		}
		return []domain.Change{{Key: key, OldValue: old, NewValue: data}}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return total, nil
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) ([]domain.Change, error) {
		dump, err := dumpRows(ctx, tx)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
			return nil, err
		}

		changes := make([]domain.Change, 0, len(dump))
		for _, key := range slices.Sorted(maps.Keys(dump)) {
			changes = append(changes, domain.Change{Key: key, OldValue: dump[key]})
		}
		return changes, nil
	})
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Reset removes every key not in keep and fills absent keys from defaults
// in one transaction.
func (s *Store) Reset(ctx context.Context, keep []string, defaults map[string]any) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	encoded, err := store.EncodeValues(defaults)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) ([]domain.Change, error) {
		current, err := dumpRows(ctx, tx)
		if err != nil {
			return nil, err
		}

		plan := store.PlanReset(current, keep, encoded)
		for _, key := range plan.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
				return nil, err
			}
		}
		for key, val := range plan.Write {
			if err := upsert(ctx, tx, key, val); err != nil {
				return nil, err
			}
		}
		return plan.Changes, nil
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Dump returns every key with its raw value.
func (s *Store) Dump(ctx context.Context) (map[string]json.RawMessage, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out, err := dumpRows(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("dump: %w", err)
	}
	return out, nil
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return ctx.Err()
}

// withTx runs fn in a transaction and publishes its changes after commit.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) ([]domain.Change, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	changes, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notifier.Publish(changes...)
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func dumpRows(ctx context.Context, q queryer) (map[string]json.RawMessage, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

func readRaw(ctx context.Context, tx *sql.Tx, key string) (json.RawMessage, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func upsert(ctx context.Context, tx *sql.Tx, key string, value json.RawMessage) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), now())
	return err
}

// now formats the current time as RFC3339Nano for storage.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

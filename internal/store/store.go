package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/mstimer/mstimer-server/internal/domain"
)

// Store is the badger-backed KeyValue implementation.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	notifier *Notifier
	closed   atomic.Bool
	writeMu  sync.Mutex
}

var _ KeyValue = (*Store)(nil)

// New opens (or creates) a badger database at path.
// The emitter receives every committed domain.Change; pass NewNoopEmitter() when unused.
func New(path string, logger *slog.Logger, emitter EventEmitter) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	return open(opts, logger, emitter)
}

// NewInMemory opens a badger database that lives only in memory.
func NewInMemory(logger *slog.Logger, emitter EventEmitter) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, logger, emitter)
}

// OpenReadOnly opens an existing database without taking the write lock.
// Used by inspection tools while the server may be stopped.
func OpenReadOnly(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithReadOnly(true)
	opts.Logger = nil
	return open(opts, logger, nil)
}

func open(opts badger.Options, logger *slog.Logger, emitter EventEmitter) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	logger.Info("Badger database opened successfully", "path", opts.Dir, "in_memory", opts.InMemory)

	return &Store{
		db:       db,
		logger:   logger,
		notifier: NewNotifier(logger, emitter),
	}, nil
}

// Close gracefully closes the database connection and every subscription.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("Closing database connection")
	s.notifier.Close()
	return s.db.Close()
}

// Subscribe registers a change listener.
func (s *Store) Subscribe() *Subscription {
	return s.notifier.Subscribe()
}

// Ping reports whether the database can serve reads.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// Get decodes the value of key into dest.
func (s *Store) Get(ctx context.Context, key string, dest any) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

// Set writes all values in one transaction.
func (s *Store) Set(ctx context.Context, values map[string]any) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	encoded, err := EncodeValues(values)
	if err != nil {
		return err
	}

	err = s.update(func(txn *badger.Txn) ([]domain.Change, error) {
		changes := make([]domain.Change, 0, len(encoded))
		for _, key := range slices.Sorted(maps.Keys(encoded)) {
			old, err := readRaw(txn, key)
			if err != nil {
				return nil, err
			}
			if err := txn.Set(kvKey(key), encoded[key]); err != nil {
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

	encoded, err := EncodeValues(values)
	if err != nil {
		return nil, err
	}

	var applied []string
	err = s.update(func(txn *badger.Txn) ([]domain.Change, error) {
		applied = applied[:0]
		var changes []domain.Change
		for _, key := range slices.Sorted(maps.Keys(encoded)) {
			_, err := txn.Get(kvKey(key))
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return nil, err
			}
			if err := txn.Set(kvKey(key), encoded[key]); err != nil {
				return nil, err
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

// Increment adds delta to a numeric key inside one read-modify-write transaction.
func (s *Store) Increment(ctx context.Context, key string, delta float64) (float64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	var total float64
	err := s.update(func(txn *badger.Txn) ([]domain.Change, error) {
		old, err := readRaw(txn, key)
		if err != nil {
			return nil, err
		}

		current, err := DecodeNumber(old)
		if err != nil {
			return nil, err
		}
		total = current + delta

		data, err := json.Marshal(total)
		if err != nil {
			return nil, ErrInvalidValue.WithCause(err)
		}
		if err := txn.Set(kvKey(key), data); err != nil {
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

	err := s.update(func(txn *badger.Txn) ([]domain.Change, error) {
		var changes []domain.Change
		err := iterate(txn, func(key string, val []byte) error {
			changes = append(changes, domain.Change{Key: key, OldValue: val})
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, c := range changes {
			if err := txn.Delete(kvKey(c.Key)); err != nil {
				return nil, err
			}
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

	encoded, err := EncodeValues(defaults)
	if err != nil {
		return err
	}

	err = s.update(func(txn *badger.Txn) ([]domain.Change, error) {
		current := make(map[string]json.RawMessage)
		err := iterate(txn, func(key string, val []byte) error {
			current[key] = val
			return nil
		})
		if err != nil {
			return nil, err
		}

		plan := PlanReset(current, keep, encoded)
		for _, key := range plan.Delete {
			if err := txn.Delete(kvKey(key)); err != nil {
				return nil, err
			}
		}
		for key, val := range plan.Write {
			if err := txn.Set(kvKey(key), val); err != nil {
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

	out := make(map[string]json.RawMessage)
	err := s.db.View(func(txn *badger.Txn) error {
		return iterate(txn, func(key string, val []byte) error {
			out[key] = val
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("dump: %w", err)
	}
	return out, nil
}

// update runs fn in a read-write transaction. Writers are serialized so a
// read-modify-write never fails with badger.ErrConflict and changes are
// published in commit order.
func (s *Store) update(fn func(txn *badger.Txn) ([]domain.Change, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var changes []domain.Change
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		changes, err = fn(txn)
		return err
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(changes...)
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// readRaw returns a copy of the stored value, or nil when the key is absent.
func readRaw(txn *badger.Txn, key string) (json.RawMessage, error) {
	item, err := txn.Get(kvKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// iterate visits every namespaced key. Values are copies.
func iterate(txn *badger.Txn, fn func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(kvPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(kvName(item.KeyCopy(nil)), val); err != nil {
			return err
		}
	}
	return nil
}

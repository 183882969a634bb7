// Package store persists the timer's key-value data and announces every change.
package store

import (
	"context"
	"encoding/json"
)

// KeyValue is the persistence contract shared by the badger and sqlite backends.
// Values are JSON documents. Every mutation that changes a key is published
// to subscribers as a domain.Change after the write committed.
type KeyValue interface {
	// Get decodes the value of key into dest. It reports false when the key is absent.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set writes all values in one transaction.
	Set(ctx context.Context, values map[string]any) error
	// SetDefaults writes only the keys that are absent and returns them.
	SetDefaults(ctx context.Context, values map[string]any) ([]string, error)
	// Increment adds delta to the numeric value of key (absent counts as 0)
	// inside one transaction and returns the new value.
	Increment(ctx context.Context, key string, delta float64) (float64, error)
	// Clear removes every key.
	Clear(ctx context.Context) error
	// Reset removes every key not in keep and writes each default whose key
	// is then absent, all in one transaction.
	Reset(ctx context.Context, keep []string, defaults map[string]any) error
	// Dump returns every key with its raw value.
	Dump(ctx context.Context) (map[string]json.RawMessage, error)
	// Subscribe registers a change listener. Close the subscription when done.
	Subscribe() *Subscription
	// Ping reports whether the backend can serve reads.
	Ping(ctx context.Context) error
	Close() error
}

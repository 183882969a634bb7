package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/mstimer/mstimer-server/internal/domain"
)

// EncodeValues marshals every value to JSON.
func EncodeValues(values map[string]any) (map[string]json.RawMessage, error) {
	encoded := make(map[string]json.RawMessage, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, ErrInvalidValue.WithCause(fmt.Errorf("%s: %w", key, err))
		}
		encoded[key] = data
	}
	return encoded, nil
}

// DecodeNumber reads a stored number; an absent value counts as zero.
func DecodeNumber(raw json.RawMessage) (float64, error) {
	if raw == nil {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, ErrInvalidValue.WithCause(err)
	}
	return n, nil
}

// ResetPlan is what Reset does to one snapshot of the store.
type ResetPlan struct {
	Delete  []string
	Write   map[string]json.RawMessage
	Changes []domain.Change
}

// PlanReset removes every key of current that is not kept, then fills each
// absent key from defaults. A removed key that has a default is written
// over in place, so it never reads as absent.
func PlanReset(current map[string]json.RawMessage, keep []string, defaults map[string]json.RawMessage) ResetPlan {
	plan := ResetPlan{Write: make(map[string]json.RawMessage)}

	keys := slices.Collect(maps.Keys(current))
	for key := range defaults {
		if _, ok := current[key]; !ok {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	for _, key := range keys {
		old, present := current[key]
		if present && slices.Contains(keep, key) {
			continue
		}
		if def, ok := defaults[key]; ok {
			plan.Write[key] = def
			plan.Changes = append(plan.Changes, domain.Change{Key: key, OldValue: old, NewValue: def})
			continue
		}
		plan.Delete = append(plan.Delete, key)
		plan.Changes = append(plan.Changes, domain.Change{Key: key, OldValue: old})
	}
	return plan
}

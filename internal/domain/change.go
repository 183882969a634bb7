package domain

import "encoding/json"

// Change describes a single key transition in the key-value store.
// OldValue is nil when the key did not exist; NewValue is nil when it was removed.
type Change struct {
	Key      string          `json:"key"`
	OldValue json.RawMessage `json:"old_value,omitempty"`
	NewValue json.RawMessage `json:"new_value,omitempty"`
}

// Removed reports whether the change deleted the key.
func (c Change) Removed() bool {
	return c.NewValue == nil
}

// DecodeNew unmarshals the new value into dest.
// It returns false when the key was removed or the value does not decode.
func (c Change) DecodeNew(dest any) bool {
	if c.NewValue == nil {
		return false
	}
	return json.Unmarshal(c.NewValue, dest) == nil
}

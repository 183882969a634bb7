// Package sse implements Server-Sent Events for store changes and per-page display updates.
package sse

import (
	"encoding/json"
	"time"

	"github.com/mstimer/mstimer-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is the first event of every stream.
	EventConnected EventType = "connected"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventStorageChanged mirrors a committed key-value change. Sent to every client.
	EventStorageChanged EventType = "storage.changed"

	// EventDisplayUpdated carries new readout text. Sent to one page.
	EventDisplayUpdated EventType = "display.updated"
	// EventDisplayMode toggles the millisecond marker class on a page's readouts.
	EventDisplayMode EventType = "display.mode"
	// EventPageDetached tells a page its session ended server-side.
	EventPageDetached EventType = "page.detached"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// PageID limits delivery to the stream of one page. Empty means broadcast.
	PageID string `json:"-"`
}

// StorageChangedEventData is the data payload for storage.changed events.
type StorageChangedEventData struct {
	Key      string          `json:"key"`
	OldValue json.RawMessage `json:"old_value,omitempty"`
	NewValue json.RawMessage `json:"new_value,omitempty"`
}

// DisplayUpdatedEventData is the data payload for display.updated events.
type DisplayUpdatedEventData struct {
	Readout string `json:"readout"`
	Text    string `json:"text"`
}

// DisplayModeEventData is the data payload for display.mode events.
type DisplayModeEventData struct {
	Readout string `json:"readout"`
	Class   string `json:"class"`
	Enabled bool   `json:"enabled"`
}

// PageDetachedEventData is the data payload for page.detached events.
type PageDetachedEventData struct {
	PageID string `json:"page_id"`
	Reason string `json:"reason"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewStorageChangedEvent converts a store change into a broadcast event.
func NewStorageChangedEvent(c domain.Change) Event {
	return Event{
		Type:      EventStorageChanged,
		Timestamp: time.Now(),
		Data: StorageChangedEventData{
			Key:      c.Key,
			OldValue: c.OldValue,
			NewValue: c.NewValue,
		},
	}
}

// NewDisplayUpdatedEvent creates a display.updated event for one page.
func NewDisplayUpdatedEvent(pageID, readout, text string) Event {
	return Event{
		Type:      EventDisplayUpdated,
		Timestamp: time.Now(),
		PageID:    pageID,
		Data:      DisplayUpdatedEventData{Readout: readout, Text: text},
	}
}

// NewDisplayModeEvent creates a display.mode event for one page.
func NewDisplayModeEvent(pageID, readout, class string, enabled bool) Event {
	return Event{
		Type:      EventDisplayMode,
		Timestamp: time.Now(),
		PageID:    pageID,
		Data:      DisplayModeEventData{Readout: readout, Class: class, Enabled: enabled},
	}
}

// NewPageDetachedEvent creates a page.detached event for one page.
func NewPageDetachedEvent(pageID, reason string) Event {
	return Event{
		Type:      EventPageDetached,
		Timestamp: time.Now(),
		PageID:    pageID,
		Data:      PageDetachedEventData{PageID: pageID, Reason: reason},
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Timestamp: now,
		Data:      HeartbeatEventData{ServerTime: now},
	}
}

// Package page hosts the server side of browser pages: each attached page gets
// a player observer fed by events its shim reports, and receives display
// updates back over SSE.
package page

import "github.com/mstimer/mstimer-server/internal/player"

// EventType names an event reported by a page shim.
type EventType string

// Page events.
const (
	EventDOMInserted         EventType = "dom.inserted"
	EventPlayerState         EventType = "player.state"
	EventMediaLoadedMetadata EventType = "media.loadedmetadata"
	EventMediaTimeUpdate     EventType = "media.timeupdate"
	EventMediaPlay           EventType = "media.play"
	EventMediaPause          EventType = "media.pause"
	EventMediaEnded          EventType = "media.ended"
	EventMediaSeeking        EventType = "media.seeking"
	EventVisibilityHidden    EventType = "visibility.hidden"
	EventVisibilityVisible   EventType = "visibility.visible"
	EventPageUnload          EventType = "page.unload"
)

var mediaEvents = map[EventType]player.MediaEvent{
	EventMediaLoadedMetadata: player.EventLoadedMetadata,
	EventMediaTimeUpdate:     player.EventTimeUpdate,
	EventMediaPlay:           player.EventPlay,
	EventMediaPause:          player.EventPause,
	EventMediaEnded:          player.EventEnded,
	EventMediaSeeking:        player.EventSeeking,
}

// Event is one report from a page shim. Player, when set, is a snapshot of
// the page's player taken when the event happened and is applied first.
type Event struct {
	Type   EventType    `json:"type" validate:"required,oneof=dom.inserted player.state media.loadedmetadata media.timeupdate media.play media.pause media.ended media.seeking visibility.hidden visibility.visible page.unload"`
	Nodes  []NodeInfo   `json:"nodes,omitempty" validate:"max=500"`
	Player *PlayerState `json:"player,omitempty"`
}

// NodeInfo describes an inserted DOM node.
type NodeInfo struct {
	Video    bool `json:"is_video"`
	HasVideo bool `json:"contains_video"`
}

// IsVideo implements player.Node.
func (n NodeInfo) IsVideo() bool { return n.Video }

// ContainsVideo implements player.Node.
func (n NodeInfo) ContainsVideo() bool { return n.HasVideo }

// PlayerState is the shim's view of the page's player. VideoID changes when
// navigation replaced the video element.
type PlayerState struct {
	VideoID         string  `json:"video_id" validate:"max=128"`
	VideoPresent    bool    `json:"video_present"`
	CurrentTime     float64 `json:"current_time" validate:"finite,gte=0,lte=1e15"`
	Duration        float64 `json:"duration" validate:"finite,gte=0,lte=1e15"`
	Paused          bool    `json:"paused"`
	CurrentReadout  bool    `json:"current_readout"`
	DurationReadout bool    `json:"duration_readout"`
}

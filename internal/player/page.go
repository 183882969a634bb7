// Package player binds the watch-time accumulator and the millisecond display
// to the video of one page, and rebinds after in-page navigation.
package player

import "context"

// MarkerClass is added to the time readouts while milliseconds are shown.
const MarkerClass = "ytp-time-milliseconds"

// MediaEvent names a media element event the observer listens for.
type MediaEvent string

// Media events.
const (
	EventLoadedMetadata MediaEvent = "loadedmetadata"
	EventTimeUpdate     MediaEvent = "timeupdate"
	EventPlay           MediaEvent = "play"
	EventPause          MediaEvent = "pause"
	EventEnded          MediaEvent = "ended"
	EventSeeking        MediaEvent = "seeking"
)

// MediaEvents lists every event a binding subscribes to.
var MediaEvents = []MediaEvent{
	EventLoadedMetadata,
	EventTimeUpdate,
	EventPlay,
	EventPause,
	EventEnded,
	EventSeeking,
}

// ReadoutKind selects one of the player's textual time readouts.
type ReadoutKind string

// Readout kinds.
const (
	ReadoutCurrent  ReadoutKind = "current"
	ReadoutDuration ReadoutKind = "duration"
)

// Page gives the observer access to the elements of one page.
// Lookups report false when the element is not present yet.
type Page interface {
	Video() (Video, bool)
	Readout(kind ReadoutKind) (Readout, bool)
}

// Video is the media element being watched.
type Video interface {
	CurrentTime() float64
	Duration() float64
	Paused() bool
	// AddListener registers fn for event and returns a function removing it.
	// fn may be called from any goroutine.
	AddListener(event MediaEvent, fn func()) (remove func())
}

// Readout is a text element showing a time value.
type Readout interface {
	SetText(text string)
	AddClass(class string)
	RemoveClass(class string)
}

// Node is a DOM node inserted into the page.
type Node interface {
	IsVideo() bool
	ContainsVideo() bool
}

// PreferenceSource provides the showMilliseconds preference and its changes.
type PreferenceSource interface {
	ShowMilliseconds(ctx context.Context) (bool, error)
	// Subscribe returns a channel of new values and a function ending the subscription.
	Subscribe() (<-chan bool, func())
}

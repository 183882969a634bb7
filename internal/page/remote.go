package page

import (
	"sync"

	"github.com/mstimer/mstimer-server/internal/player"
	"github.com/mstimer/mstimer-server/internal/sse"
)

// Emitter delivers events to the SSE streams of one page.
type Emitter interface {
	EmitToPage(pageID string, event sse.Event)
}

// RemotePage is a player.Page backed by what the page shim reports.
// Readout writes are sent back to the page as SSE events.
type RemotePage struct {
	id      string
	emitter Emitter

	mu        sync.Mutex
	state     PlayerState
	video     *remoteVideo
	seenVideo bool
	readouts  map[player.ReadoutKind]*remoteReadout
}

var _ player.Page = (*RemotePage)(nil)

// NewRemotePage creates a page with no video and no readouts.
func NewRemotePage(id string, emitter Emitter) *RemotePage {
	return &RemotePage{
		id:       id,
		emitter:  emitter,
		readouts: make(map[player.ReadoutKind]*remoteReadout),
	}
}

// ID returns the page id.
func (p *RemotePage) ID() string {
	return p.id
}

// Video implements player.Page.
func (p *RemotePage) Video() (player.Video, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.video == nil {
		return nil, false
	}
	return p.video, true
}

// Readout implements player.Page.
func (p *RemotePage) Readout(kind player.ReadoutKind) (player.Readout, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.readouts[kind]
	if !ok {
		return nil, false
	}
	return r, true
}

// Update applies a player snapshot. A new video id, or the video going away,
// replaces the video and readout objects so a stale binding cannot write to
// the new elements. It reports whether a video took the place of one seen
// earlier, which an observer bound to the old one does not notice by itself.
func (p *RemotePage) Update(s PlayerState) (swapped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	replaced := s.VideoID != p.state.VideoID || !s.VideoPresent
	p.state = s

	if !s.VideoPresent {
		p.video = nil
	} else if p.video == nil || replaced {
		swapped = p.seenVideo
		p.video = newRemoteVideo()
		p.seenVideo = true
	}
	if p.video != nil {
		p.video.set(s.CurrentTime, s.Duration, s.Paused)
	}

	if replaced {
		clear(p.readouts)
	}
	p.syncReadout(player.ReadoutCurrent, s.CurrentReadout)
	p.syncReadout(player.ReadoutDuration, s.DurationReadout)
	return swapped
}

func (p *RemotePage) syncReadout(kind player.ReadoutKind, present bool) {
	if !present {
		delete(p.readouts, kind)
		return
	}
	if _, ok := p.readouts[kind]; !ok {
		p.readouts[kind] = &remoteReadout{page: p, kind: kind, classes: make(map[string]bool)}
	}
}

// Fire delivers a media event to the listeners of the current video.
func (p *RemotePage) Fire(event player.MediaEvent) {
	p.mu.Lock()
	v := p.video
	p.mu.Unlock()

	if v != nil {
		v.fire(event)
	}
}

func (p *RemotePage) emit(event sse.Event) {
	if p.emitter != nil {
		p.emitter.EmitToPage(p.id, event)
	}
}

type remoteVideo struct {
	mu        sync.Mutex
	current   float64
	duration  float64
	paused    bool
	nextID    int
	listeners map[player.MediaEvent]map[int]func()
}

func newRemoteVideo() *remoteVideo {
	return &remoteVideo{
		paused:    true,
		listeners: make(map[player.MediaEvent]map[int]func()),
	}
}

func (v *remoteVideo) set(current, duration float64, paused bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = current
	v.duration = duration
	v.paused = paused
}

func (v *remoteVideo) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

func (v *remoteVideo) Duration() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.duration
}

func (v *remoteVideo) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *remoteVideo) AddListener(event player.MediaEvent, fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	if v.listeners[event] == nil {
		v.listeners[event] = make(map[int]func())
	}
	v.listeners[event][id] = fn

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners[event], id)
	}
}

// fire calls listeners outside the lock; they post into an observer loop
// that may itself be reading the video.
func (v *remoteVideo) fire(event player.MediaEvent) {
	v.mu.Lock()
	switch event {
	case player.EventPlay:
		v.paused = false
	case player.EventPause, player.EventEnded:
		v.paused = true
	}
	fns := make([]func(), 0, len(v.listeners[event]))
	for _, fn := range v.listeners[event] {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// remoteReadout forwards changes to the page. Unchanged text and classes
// that are already in the requested state are not sent again.
type remoteReadout struct {
	page *RemotePage
	kind player.ReadoutKind

	mu      sync.Mutex
	text    string
	classes map[string]bool
}

func (r *remoteReadout) SetText(text string) {
	r.mu.Lock()
	if r.text == text {
		r.mu.Unlock()
		return
	}
	r.text = text
	r.mu.Unlock()

	r.page.emit(sse.NewDisplayUpdatedEvent(r.page.id, string(r.kind), text))
}

func (r *remoteReadout) AddClass(class string) {
	r.setClass(class, true)
}

func (r *remoteReadout) RemoveClass(class string) {
	r.setClass(class, false)
}

func (r *remoteReadout) setClass(class string, enabled bool) {
	r.mu.Lock()
	if r.classes[class] == enabled {
		r.mu.Unlock()
		return
	}
	r.classes[class] = enabled
	r.mu.Unlock()

	r.page.emit(sse.NewDisplayModeEvent(r.page.id, string(r.kind), class, enabled))
}

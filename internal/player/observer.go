package player

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/timefmt"
	"github.com/mstimer/mstimer-server/internal/watchtime"
)

// State is the observer's binding state.
type State int32

// Observer states.
const (
	StateIdle State = iota
	StateSearching
	StateBound
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Timing holds the observer's intervals. Zero fields take the defaults.
type Timing struct {
	SearchInterval  time.Duration
	SearchTimeout   time.Duration
	SettleDelay     time.Duration
	RefreshInterval time.Duration
	TickInterval    time.Duration
	MaxDelta        time.Duration
}

// DefaultTiming returns the intervals used by the browser extension.
func DefaultTiming() Timing {
	return Timing{
		SearchInterval:  100 * time.Millisecond,
		SearchTimeout:   10 * time.Second,
		SettleDelay:     500 * time.Millisecond,
		RefreshInterval: 50 * time.Millisecond,
		TickInterval:    time.Second,
		MaxDelta:        domain.MaxDelta,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.SearchInterval <= 0 {
		t.SearchInterval = d.SearchInterval
	}
	if t.SearchTimeout <= 0 {
		t.SearchTimeout = d.SearchTimeout
	}
	if t.SettleDelay <= 0 {
		t.SettleDelay = d.SettleDelay
	}
	if t.RefreshInterval <= 0 {
		t.RefreshInterval = d.RefreshInterval
	}
	if t.TickInterval <= 0 {
		t.TickInterval = d.TickInterval
	}
	if t.MaxDelta <= 0 {
		t.MaxDelta = d.MaxDelta
	}
	return t
}

// Recorder observes bindings and accumulator outcomes. Optional.
type Recorder interface {
	watchtime.Recorder
	PlayerBound(bound bool)
}

// Options configures an Observer.
type Options struct {
	Timing      Timing
	Committer   watchtime.Committer
	Preferences PreferenceSource
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Recorder    Recorder
}

// closeTimeout bounds the final flush when the observer stops because its
// context ended rather than through Close.
const closeTimeout = 2 * time.Second

type mediaMsg struct {
	binding *binding
	event   MediaEvent
}

type insertedMsg struct {
	nodes []Node
}

type visibilityMsg struct {
	hidden bool
}

// binding is the association between one video and the listeners and
// timers tracking it.
type binding struct {
	video    Video
	acc      *watchtime.Accumulator
	removers []func()
}

// Observer runs the Idle/Searching/Bound state machine for one page.
// All state is owned by a single goroutine; the exported methods only post
// messages to it.
type Observer struct {
	page      Page
	timing    Timing
	committer watchtime.Committer
	prefs     PreferenceSource
	clock     clockwork.Clock
	logger    *slog.Logger
	recorder  Recorder

	inbox     chan any
	closing   chan context.Context
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
	state     atomic.Int32

	// Loop-owned.
	ctx            context.Context
	showMs         bool
	binding        *binding
	searchTicker   clockwork.Ticker
	searchDeadline clockwork.Timer
	settle         clockwork.Timer
	refresher      clockwork.Ticker
	ticker         clockwork.Ticker
}

// New creates an observer for page. Call Start to run it.
func New(page Page, opts Options) *Observer {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	return &Observer{
		page:      page,
		timing:    opts.Timing.withDefaults(),
		committer: opts.Committer,
		prefs:     opts.Preferences,
		clock:     opts.Clock,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		inbox:     make(chan any, 256),
		closing:   make(chan context.Context, 1),
		done:      make(chan struct{}),
		showMs:    domain.DefaultShowMilliseconds,
	}
}

// Start reads the display preference and begins searching for the player.
func (o *Observer) Start(ctx context.Context) {
	if !o.started.CompareAndSwap(false, true) {
		return
	}
	go o.run(ctx)
}

// State reports the current state.
func (o *Observer) State() State {
	return State(o.state.Load())
}

// Done is closed when the observer has stopped.
func (o *Observer) Done() <-chan struct{} {
	return o.done
}

// NotifyInserted reports nodes inserted into the page. If any of them is or
// contains a video, the binding is replaced after the settle delay.
func (o *Observer) NotifyInserted(nodes []Node) {
	o.post(insertedMsg{nodes: nodes})
}

// NotifyVisibility reports the page being hidden or shown again.
func (o *Observer) NotifyVisibility(hidden bool) {
	o.post(visibilityMsg{hidden: hidden})
}

// Close tears the observer down: a playing session is flushed once and
// every timer is cancelled. It waits until that is done or ctx ends.
func (o *Observer) Close(ctx context.Context) error {
	if o.started.CompareAndSwap(false, true) {
		o.setState(StateClosed)
		close(o.done)
		return nil
	}

	o.closeOnce.Do(func() {
		o.closing <- ctx
	})

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Observer) post(msg any) {
	select {
	case o.inbox <- msg:
	case <-o.done:
	}
}

func (o *Observer) setState(s State) {
	o.state.Store(int32(s))
}

func (o *Observer) run(ctx context.Context) {
	defer close(o.done)
	o.ctx = ctx

	var prefChanges <-chan bool
	if o.prefs != nil {
		show, err := o.prefs.ShowMilliseconds(ctx)
		if err != nil {
			o.logger.Warn("failed to load display preference", "error", err)
		} else {
			o.showMs = show
		}
		var cancel func()
		prefChanges, cancel = o.prefs.Subscribe()
		defer cancel()
	}

	o.startSearch()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			o.teardown(flushCtx)
			cancel()
			return

		case closeCtx := <-o.closing:
			o.teardown(closeCtx)
			return

		case msg := <-o.inbox:
			o.handle(msg)

		case show, ok := <-prefChanges:
			if !ok {
				prefChanges = nil
				continue
			}
			o.setShowMilliseconds(show)

		case <-tickerChan(o.searchTicker):
			o.poll()

		case <-timerChan(o.searchDeadline):
			o.stopSearch()
			o.setState(StateIdle)
			o.logger.Debug("player search timed out")

		case <-timerChan(o.settle):
			o.settle = nil
			o.unbind(ctx)
			o.startSearch()

		case <-tickerChan(o.refresher):
			o.render()

		case <-tickerChan(o.ticker):
			if o.binding != nil {
				o.binding.acc.Tick(ctx)
			}
		}
	}
}

func (o *Observer) handle(msg any) {
	switch m := msg.(type) {
	case mediaMsg:
		if m.binding != o.binding {
			return
		}
		o.handleMedia(m.event)

	case insertedMsg:
		for _, n := range m.nodes {
			if n.IsVideo() || n.ContainsVideo() {
				o.armSettle()
				return
			}
		}

	case visibilityMsg:
		if o.binding == nil {
			return
		}
		if m.hidden {
			o.binding.acc.OnVisibilityHidden(o.ctx)
		} else {
			o.binding.acc.OnVisibilityRestored()
		}
	}
}

func (o *Observer) handleMedia(event MediaEvent) {
	acc := o.binding.acc
	switch event {
	case EventLoadedMetadata, EventTimeUpdate:
		o.render()
	case EventPlay:
		acc.OnPlay()
	case EventPause, EventEnded:
		acc.OnPauseOrEnd(o.ctx)
	case EventSeeking:
		acc.OnSeeking()
	}
}

func (o *Observer) armSettle() {
	if o.settle != nil {
		o.settle.Stop()
	}
	o.settle = o.clock.NewTimer(o.timing.SettleDelay)
}

func (o *Observer) startSearch() {
	o.stopSearch()
	o.setState(StateSearching)
	o.searchTicker = o.clock.NewTicker(o.timing.SearchInterval)
	o.searchDeadline = o.clock.NewTimer(o.timing.SearchTimeout)
}

func (o *Observer) stopSearch() {
	if o.searchTicker != nil {
		o.searchTicker.Stop()
		o.searchTicker = nil
	}
	if o.searchDeadline != nil {
		o.searchDeadline.Stop()
		o.searchDeadline = nil
	}
}

// poll binds when both the video and its current-time readout are present.
// Anything missing is retried on the next tick.
func (o *Observer) poll() {
	video, ok := o.page.Video()
	if !ok {
		return
	}
	if _, ok := o.page.Readout(ReadoutCurrent); !ok {
		return
	}
	o.stopSearch()
	o.bind(video)
}

func (o *Observer) bind(video Video) {
	b := &binding{
		video: video,
		acc: watchtime.New(o.committer, watchtime.Options{
			Clock:    o.clock,
			MaxDelta: o.timing.MaxDelta,
			Logger:   o.logger,
			Recorder: o.watchtimeRecorder(),
		}),
	}

	for _, event := range MediaEvents {
		b.removers = append(b.removers, video.AddListener(event, func() {
			o.post(mediaMsg{binding: b, event: event})
		}))
	}

	if !video.Paused() {
		b.acc.OnPlay()
	}

	o.binding = b
	o.ticker = o.clock.NewTicker(o.timing.TickInterval)
	o.applyDisplayMode()
	o.setState(StateBound)
	if o.recorder != nil {
		o.recorder.PlayerBound(true)
	}
	o.logger.Debug("player bound", "playing", b.acc.Playing())
}

func (o *Observer) watchtimeRecorder() watchtime.Recorder {
	if o.recorder == nil {
		return nil
	}
	return o.recorder
}

// unbind flushes the session and removes every listener and timer of the
// current binding.
func (o *Observer) unbind(ctx context.Context) {
	b := o.binding
	if b == nil {
		return
	}
	b.acc.OnTeardown(ctx)
	for _, remove := range b.removers {
		remove()
	}
	if o.ticker != nil {
		o.ticker.Stop()
		o.ticker = nil
	}
	o.stopRefresher()
	o.binding = nil
	if o.recorder != nil {
		o.recorder.PlayerBound(false)
	}
}

func (o *Observer) teardown(ctx context.Context) {
	if o.settle != nil {
		o.settle.Stop()
		o.settle = nil
	}
	o.stopSearch()
	o.unbind(ctx)
	o.setState(StateClosed)
}

func (o *Observer) setShowMilliseconds(show bool) {
	if show == o.showMs {
		return
	}
	o.showMs = show
	if o.binding != nil {
		o.applyDisplayMode()
	}
}

// applyDisplayMode sets the marker class, starts or stops the refresher and
// renders once with the current precision.
func (o *Observer) applyDisplayMode() {
	for _, kind := range []ReadoutKind{ReadoutCurrent, ReadoutDuration} {
		r, ok := o.page.Readout(kind)
		if !ok {
			continue
		}
		if o.showMs {
			r.AddClass(MarkerClass)
		} else {
			r.RemoveClass(MarkerClass)
		}
	}

	if o.showMs {
		if o.refresher == nil {
			o.refresher = o.clock.NewTicker(o.timing.RefreshInterval)
		}
	} else {
		o.stopRefresher()
	}

	o.render()
}

func (o *Observer) stopRefresher() {
	if o.refresher != nil {
		o.refresher.Stop()
		o.refresher = nil
	}
}

func (o *Observer) render() {
	if o.binding == nil {
		return
	}
	precision := timefmt.PrecisionFor(o.showMs)
	video := o.binding.video

	if r, ok := o.page.Readout(ReadoutCurrent); ok {
		if t := video.CurrentTime(); timefmt.Renderable(t) {
			r.SetText(timefmt.Format(t, precision))
		}
	}
	if r, ok := o.page.Readout(ReadoutDuration); ok {
		if d := video.Duration(); timefmt.Renderable(d) {
			r.SetText(timefmt.Format(d, precision))
		}
	}
}

func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func timerChan(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

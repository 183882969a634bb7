// Package watchtime turns wall-clock time spent playing into bounded deltas
// committed to the watch-time total.
package watchtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/logger"
)

// Reasons a measured delta is not committed.
const (
	ReasonNonPositive = "non_positive"
	ReasonTooLarge    = "too_large"
)

// Committer adds seconds to the persistent total.
type Committer interface {
	Commit(ctx context.Context, seconds float64) error
}

// Recorder observes what happens to each measured delta. Optional.
type Recorder interface {
	Discarded(reason string)
	CommitFailed()
}

// Options configures an Accumulator. Zero values fall back to defaults.
type Options struct {
	Clock    clockwork.Clock
	MaxDelta time.Duration
	Logger   *slog.Logger
	Recorder Recorder
}

// Accumulator measures playing time for one binding.
// It is not safe for concurrent use; the owning observer loop serializes calls.
type Accumulator struct {
	committer Committer
	clock     clockwork.Clock
	maxDelta  time.Duration
	logger    *slog.Logger
	recorder  Recorder

	playing bool
	instant time.Time
}

// New creates an accumulator in the not-playing state.
func New(committer Committer, opts Options) *Accumulator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxDelta <= 0 {
		opts.MaxDelta = domain.MaxDelta
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	return &Accumulator{
		committer: committer,
		clock:     opts.Clock,
		maxDelta:  opts.MaxDelta,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		instant:   opts.Clock.Now(),
	}
}

// Playing reports whether the video is considered playing.
func (a *Accumulator) Playing() bool {
	return a.playing
}

// OnPlay starts measuring from now.
func (a *Accumulator) OnPlay() {
	a.playing = true
	a.instant = a.clock.Now()
}

// OnPauseOrEnd flushes the pending interval and stops measuring.
// A second call without an intervening OnPlay does nothing.
func (a *Accumulator) OnPauseOrEnd(ctx context.Context) {
	if !a.playing {
		return
	}
	a.flush(ctx)
	a.playing = false
}

// OnSeeking drops the pending interval without committing it.
func (a *Accumulator) OnSeeking() {
	a.instant = a.clock.Now()
}

// Tick commits the interval since the last sampling instant.
func (a *Accumulator) Tick(ctx context.Context) {
	if !a.playing {
		return
	}
	a.flush(ctx)
}

// OnVisibilityHidden flushes as if paused but keeps the playing flag.
func (a *Accumulator) OnVisibilityHidden(ctx context.Context) {
	if !a.playing {
		return
	}
	a.flush(ctx)
}

// OnVisibilityRestored restarts measuring so the hidden interval is not credited.
func (a *Accumulator) OnVisibilityRestored() {
	if a.playing {
		a.instant = a.clock.Now()
	}
}

// OnTeardown performs the final flush of a session that ends while playing.
func (a *Accumulator) OnTeardown(ctx context.Context) {
	if !a.playing {
		return
	}
	a.flush(ctx)
	a.playing = false
}

// flush commits now-instant when it is a valid delta and advances instant
// whether or not it was committed.
func (a *Accumulator) flush(ctx context.Context) {
	now := a.clock.Now()
	delta := now.Sub(a.instant).Seconds()
	a.instant = now

	if !domain.ValidDeltaWithin(delta, a.maxDelta) {
		reason := ReasonTooLarge
		if delta <= 0 {
			reason = ReasonNonPositive
		}
		a.logger.Debug("discarding watch time delta", "seconds", delta, "reason", reason)
		if a.recorder != nil {
			a.recorder.Discarded(reason)
		}
		return
	}

	if err := a.committer.Commit(ctx, delta); err != nil {
		a.logger.Warn("failed to commit watch time", "seconds", delta, "error", err)
		if a.recorder != nil {
			a.recorder.CommitFailed()
		}
	}
}

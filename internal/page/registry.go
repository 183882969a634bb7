package page

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mstimer/mstimer-server/internal/auth"
	domainerrors "github.com/mstimer/mstimer-server/internal/errors"
	"github.com/mstimer/mstimer-server/internal/id"
	"github.com/mstimer/mstimer-server/internal/player"
	"github.com/mstimer/mstimer-server/internal/ratelimit"
	"github.com/mstimer/mstimer-server/internal/sse"
	"github.com/mstimer/mstimer-server/internal/watchtime"
)

// Reasons a page is detached.
const (
	ReasonClient   = "client"
	ReasonUnload   = "unload"
	ReasonIdle     = "idle"
	ReasonShutdown = "shutdown"
)

// detachTimeout bounds the final flush of a page detached by the reaper or at shutdown.
const detachTimeout = 5 * time.Second

// Recorder observes pages and their observers. Optional.
type Recorder interface {
	player.Recorder
	PageEvent(eventType string)
	PageAttached(attached bool)
}

// Attachment is returned to a page shim when it attaches.
type Attachment struct {
	PageID    string    `json:"page_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Options configures a Registry.
type Options struct {
	Tokens      *auth.TokenService
	Sender      watchtime.Sender
	Preferences player.PreferenceSource
	Emitter     Emitter
	Timing      player.Timing
	IdleTimeout time.Duration
	EventRate   float64
	EventBurst  int
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Recorder    Recorder
}

type entry struct {
	page     *RemotePage
	observer *player.Observer
	origin   string
	lastSeen time.Time
}

// Registry owns every attached page.
type Registry struct {
	opts    Options
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
	clock   clockwork.Clock

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	pages  map[string]*entry
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 2 * time.Minute
	}
	if opts.EventRate <= 0 {
		opts.EventRate = 200
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = 2 * int(opts.EventRate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:    opts,
		limiter: ratelimit.New(opts.EventRate, opts.EventBurst),
		logger:  opts.Logger,
		clock:   opts.Clock,
		baseCtx: ctx,
		cancel:  cancel,
		pages:   make(map[string]*entry),
	}
}

// Attach registers a new page, issues its token and starts its observer.
func (r *Registry) Attach(origin string) (Attachment, error) {
	pageID, err := id.Generate(id.PrefixPage)
	if err != nil {
		return Attachment{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate page id")
	}
	token, expiresAt, err := r.opts.Tokens.IssuePageToken(pageID, origin)
	if err != nil {
		return Attachment{}, domainerrors.Wrap(err, domainerrors.CodeInternal, "issue page token")
	}

	log := r.logger.With("page_id", pageID)
	remote := NewRemotePage(pageID, r.opts.Emitter)
	observer := player.New(remote, player.Options{
		Timing:      r.opts.Timing,
		Committer:   watchtime.NewSenderCommitter(r.opts.Sender),
		Preferences: r.opts.Preferences,
		Clock:       r.clock,
		Logger:      log,
		Recorder:    r.playerRecorder(),
	})

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Attachment{}, domainerrors.Unavailable("page registry closed")
	}
	r.pages[pageID] = &entry{
		page:     remote,
		observer: observer,
		origin:   origin,
		lastSeen: r.clock.Now(),
	}
	r.mu.Unlock()

	observer.Start(r.baseCtx)
	if r.opts.Recorder != nil {
		r.opts.Recorder.PageAttached(true)
	}
	log.Info("page attached", "origin", origin)

	return Attachment{PageID: pageID, Token: token, ExpiresAt: expiresAt}, nil
}

func (r *Registry) playerRecorder() player.Recorder {
	if r.opts.Recorder == nil {
		return nil
	}
	return r.opts.Recorder
}

// Dispatch applies one event reported by a page.
func (r *Registry) Dispatch(ctx context.Context, pageID string, event Event) error {
	if !r.limiter.Allow(pageID) {
		return domainerrors.RateLimited("too many page events")
	}

	r.mu.Lock()
	e, ok := r.pages[pageID]
	if ok {
		e.lastSeen = r.clock.Now()
	}
	r.mu.Unlock()
	if !ok {
		return domainerrors.NotFound("page not attached")
	}

	if r.opts.Recorder != nil {
		r.opts.Recorder.PageEvent(string(event.Type))
	}

	if event.Player != nil && e.page.Update(*event.Player) {
		e.observer.NotifyInserted([]player.Node{NodeInfo{Video: true}})
	}

	switch event.Type {
	case EventDOMInserted:
		nodes := make([]player.Node, len(event.Nodes))
		for i, n := range event.Nodes {
			nodes[i] = n
		}
		e.observer.NotifyInserted(nodes)
	case EventVisibilityHidden:
		e.observer.NotifyVisibility(true)
	case EventVisibilityVisible:
		e.observer.NotifyVisibility(false)
	case EventPageUnload:
		return r.Detach(ctx, pageID, ReasonUnload)
	case EventPlayerState:
	default:
		if media, ok := mediaEvents[event.Type]; ok {
			e.page.Fire(media)
		}
	}
	return nil
}

// Detach stops a page's observer, which flushes a playing session, and
// tells the page it was detached.
func (r *Registry) Detach(ctx context.Context, pageID, reason string) error {
	r.mu.Lock()
	e, ok := r.pages[pageID]
	delete(r.pages, pageID)
	r.mu.Unlock()
	if !ok {
		return domainerrors.NotFound("page not attached")
	}

	err := e.observer.Close(ctx)
	r.limiter.Forget(pageID)
	if r.opts.Emitter != nil {
		r.opts.Emitter.EmitToPage(pageID, sse.NewPageDetachedEvent(pageID, reason))
	}
	if r.opts.Recorder != nil {
		r.opts.Recorder.PageAttached(false)
	}
	r.logger.Info("page detached", "page_id", pageID, "reason", reason)

	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "close page observer")
	}
	return nil
}

// Reap detaches pages that have not reported an event for longer than the
// idle timeout and returns how many were detached.
func (r *Registry) Reap(ctx context.Context) int {
	cutoff := r.clock.Now().Add(-r.opts.IdleTimeout)

	r.mu.Lock()
	var idle []string
	for pageID, e := range r.pages {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, pageID)
		}
	}
	r.mu.Unlock()

	reaped := 0
	for _, pageID := range idle {
		detachCtx, cancel := context.WithTimeout(ctx, detachTimeout)
		err := r.Detach(detachCtx, pageID, ReasonIdle)
		cancel()
		if errors.Is(err, domainerrors.ErrNotFound) {
			continue
		}
		if err != nil {
			r.logger.Warn("failed to detach idle page", "page_id", pageID, "error", err)
		}
		reaped++
	}
	return reaped
}

// RunReaper calls Reap every half idle timeout until ctx is canceled.
func (r *Registry) RunReaper(ctx context.Context) {
	ticker := r.clock.NewTicker(r.opts.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if n := r.Reap(ctx); n > 0 {
				r.logger.Info("idle pages detached", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// AuthenticatePage checks a page token against an attached page.
// It implements sse.PageAuthenticator.
func (r *Registry) AuthenticatePage(pageID, token string) error {
	if _, err := r.opts.Tokens.VerifyPageTokenFor(token, pageID); err != nil {
		return err
	}
	if !r.Attached(pageID) {
		return domainerrors.NotFound("page not attached")
	}
	return nil
}

// PageForToken verifies a page token and returns the id of the attached
// page it was issued for.
func (r *Registry) PageForToken(token string) (string, error) {
	claims, err := r.opts.Tokens.VerifyPageToken(token)
	if err != nil {
		return "", err
	}
	if !r.Attached(claims.PageID) {
		return "", domainerrors.Unauthorized("page not attached")
	}
	return claims.PageID, nil
}

// Attached reports whether pageID is attached.
func (r *Registry) Attached(pageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pages[pageID]
	return ok
}

// Count returns the number of attached pages.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Close detaches every page and refuses new ones.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.pages))
	for pageID := range r.pages {
		ids = append(ids, pageID)
	}
	r.mu.Unlock()

	var errs []error
	for _, pageID := range ids {
		if err := r.Detach(ctx, pageID, ReasonShutdown); err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	r.cancel()
	r.limiter.Stop()
	return errors.Join(errs...)
}

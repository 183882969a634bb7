package store

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/mstimer/mstimer-server/internal/domain"
)

// subscriptionBuffer bounds how far a subscriber may lag before changes are dropped for it.
const subscriptionBuffer = 64

// EventEmitter is the interface for emitting SSE events.
// The store uses this to broadcast changes without depending on SSE implementation details.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter for testing.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter for testing.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// Subscription receives the changes published after it was created.
type Subscription struct {
	C <-chan domain.Change

	ch       chan domain.Change
	notifier *Notifier
}

// Close unregisters the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.notifier.unsubscribe(s)
}

// Notifier fans committed changes out to in-process subscribers and the event emitter.
type Notifier struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	emitter EventEmitter
	logger  *slog.Logger
	closed  bool
}

// NewNotifier creates a notifier. A nil emitter is replaced by a no-op.
func NewNotifier(logger *slog.Logger, emitter EventEmitter) *Notifier {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		subs:    make(map[*Subscription]struct{}),
		emitter: emitter,
		logger:  logger,
	}
}

// Subscribe registers a new subscriber. After Close the returned
// subscription's channel is already closed.
func (n *Notifier) Subscribe() *Subscription {
	ch := make(chan domain.Change, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, notifier: n}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return sub
	}
	n.subs[sub] = struct{}{}
	return sub
}

func (n *Notifier) unsubscribe(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[sub]; ok {
		delete(n.subs, sub)
		close(sub.ch)
	}
}

// Publish delivers changes in order. Changes whose value did not change are skipped.
// A subscriber whose buffer is full misses the change.
func (n *Notifier) Publish(changes ...domain.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	for _, change := range changes {
		if change.OldValue != nil && change.NewValue != nil && bytes.Equal(change.OldValue, change.NewValue) {
			continue
		}

		for sub := range n.subs {
			select {
			case sub.ch <- change:
			default:
				n.logger.Warn("change subscriber lagging, dropping change", "key", change.Key)
			}
		}
		n.emitter.Emit(change)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for sub := range n.subs {
		close(sub.ch)
	}
	clear(n.subs)
}

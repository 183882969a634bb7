package page

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mstimer/mstimer-server/internal/auth"
	"github.com/mstimer/mstimer-server/internal/domain"
	"github.com/mstimer/mstimer-server/internal/player"
	"github.com/mstimer/mstimer-server/internal/sse"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (e *recordingEmitter) EmitToPage(pageID string, event sse.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	event.PageID = pageID
	e.events = append(e.events, event)
}

func (e *recordingEmitter) ofType(t sse.EventType) []sse.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []sse.Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordingEmitter) hasText(kind player.ReadoutKind, text string) bool {
	for _, ev := range e.ofType(sse.EventDisplayUpdated) {
		data := ev.Data.(sse.DisplayUpdatedEventData)
		if data.Readout == string(kind) && data.Text == text {
			return true
		}
	}
	return false
}

type recordingSender struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (s *recordingSender) Send(_ context.Context, msg domain.Message) (domain.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return domain.Ack{Success: true}, nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type staticPrefs struct{ show bool }

func (p staticPrefs) ShowMilliseconds(context.Context) (bool, error) {
	return p.show, nil
}

func (p staticPrefs) Subscribe() (<-chan bool, func()) {
	return nil, func() {}
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	key, err := auth.LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)
	return tokens
}

func fastTiming() player.Timing {
	return player.Timing{
		SearchInterval:  5 * time.Millisecond,
		SearchTimeout:   time.Second,
		SettleDelay:     20 * time.Millisecond,
		RefreshInterval: 5 * time.Millisecond,
		TickInterval:    time.Hour,
	}
}

func setupTestRegistry(t *testing.T, mutate func(*Options)) (*Registry, *recordingEmitter, *recordingSender) {
	t.Helper()
	emitter := &recordingEmitter{}
	sender := &recordingSender{}
	opts := Options{
		Tokens:      newTestTokens(t),
		Sender:      sender,
		Preferences: staticPrefs{show: true},
		Emitter:     emitter,
		Timing:      fastTiming(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	r := NewRegistry(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r, emitter, sender
}

func playingState(videoID string, current float64, paused bool) *PlayerState {
	return &PlayerState{
		VideoID:         videoID,
		VideoPresent:    true,
		CurrentTime:     current,
		Duration:        300,
		Paused:          paused,
		CurrentReadout:  true,
		DurationReadout: true,
	}
}

package panel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstimer/mstimer-server/internal/domain"
)

type fakeAPI struct {
	mu        sync.Mutex
	stats     domain.Stats
	prefs     domain.Preferences
	statsErr  error
	prefsErr  error
	resetErr  error
	resets    int
	statsHits int
}

func (f *fakeAPI) Stats(context.Context) (domain.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsHits++
	return f.stats, f.statsErr
}

func (f *fakeAPI) Settings(context.Context) (domain.Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs, f.prefsErr
}

func (f *fakeAPI) SetShowMilliseconds(_ context.Context, show bool) (domain.Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prefsErr != nil {
		return domain.Preferences{}, f.prefsErr
	}
	f.prefs.ShowMilliseconds = show
	return f.prefs, nil
}

func (f *fakeAPI) Reset(context.Context) (domain.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return domain.Stats{}, f.resetErr
	}
	f.resets++
	f.stats = domain.Stats{Formatted: "0s"}
	return f.stats, nil
}

func (f *fakeAPI) setTotal(formatted string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.Formatted = formatted
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestPanel(api API) (*Panel, *syncBuffer, *clockwork.FakeClock) {
	out := &syncBuffer{}
	clock := clockwork.NewFakeClock()
	return New(api, out, Options{Clock: clock}), out, clock
}

func TestPanel_Load(t *testing.T) {
	api := &fakeAPI{
		stats: domain.Stats{TotalWatchTime: 65, Formatted: "1m 5s"},
		prefs: domain.Preferences{ShowMilliseconds: false},
	}
	p, _, _ := newTestPanel(api)

	require.NoError(t, p.Load(context.Background()))

	assert.Equal(t, View{Total: "1m 5s", ShowMilliseconds: false}, p.View())
	assert.True(t, p.Polling())
}

func TestPanel_LoadFailureShowsPlaceholder(t *testing.T) {
	api := &fakeAPI{statsErr: errors.New("connection refused")}
	p, _, _ := newTestPanel(api)

	require.Error(t, p.Load(context.Background()))

	assert.Equal(t, LoadErrorText, p.View().Total)
	assert.False(t, p.Polling())
}

func TestPanel_PollKeepsTextOnError(t *testing.T) {
	api := &fakeAPI{stats: domain.Stats{Formatted: "5s"}}
	p, _, _ := newTestPanel(api)
	require.NoError(t, p.Load(context.Background()))

	api.setTotal("6s")
	assert.True(t, p.Poll(context.Background()))
	assert.False(t, p.Poll(context.Background()))

	api.mu.Lock()
	api.statsErr = errors.New("timeout")
	api.mu.Unlock()
	assert.False(t, p.Poll(context.Background()))
	assert.Equal(t, "6s", p.View().Total)
}

func TestPanel_ToggleFailureKeepsState(t *testing.T) {
	api := &fakeAPI{prefs: domain.Preferences{ShowMilliseconds: true}}
	p, _, _ := newTestPanel(api)
	require.NoError(t, p.Load(context.Background()))

	require.NoError(t, p.Toggle(context.Background()))
	assert.False(t, p.View().ShowMilliseconds)

	api.mu.Lock()
	api.prefsErr = errors.New("down")
	api.mu.Unlock()
	require.Error(t, p.Toggle(context.Background()))
	assert.False(t, p.View().ShowMilliseconds)
}

func TestPanel_RunPollsEverySecond(t *testing.T) {
	api := &fakeAPI{stats: domain.Stats{Formatted: "1s"}, prefs: domain.Preferences{ShowMilliseconds: true}}
	p, out, clock := newTestPanel(api)
	in, inW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, in) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Contains(t, out.String(), "Total watch time: 1s | milliseconds: on")

	api.setTotal("2s")
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Total watch time: 2s")
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPanel_RunNoPollingAfterFailedLoad(t *testing.T) {
	api := &fakeAPI{statsErr: errors.New("down")}
	p, out, clock := newTestPanel(api)
	in, inW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, in) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Contains(t, out.String(), LoadErrorText)

	clock.Advance(3 * time.Second)
	time.Sleep(20 * time.Millisecond)

	api.mu.Lock()
	hits := api.statsHits
	api.mu.Unlock()
	assert.Equal(t, 1, hits)

	cancel()
	require.NoError(t, <-done)
}

func TestPanel_RunCommands(t *testing.T) {
	api := &fakeAPI{stats: domain.Stats{Formatted: "2h"}, prefs: domain.Preferences{ShowMilliseconds: true}}
	p, out, _ := newTestPanel(api)

	input := strings.NewReader("m\nr\nn\nr\ny\nbogus\nq\n")
	require.NoError(t, p.Run(context.Background(), input))

	text := out.String()
	assert.Contains(t, text, "milliseconds: off")
	assert.Equal(t, 2, strings.Count(text, ConfirmReset))
	assert.Contains(t, text, `unknown command "bogus"`)
	assert.Equal(t, 1, api.resets)
	assert.Equal(t, "0s", p.View().Total)
}

func TestPanel_RunResetFailure(t *testing.T) {
	api := &fakeAPI{stats: domain.Stats{Formatted: "2h"}, resetErr: errors.New("store down")}
	p, out, _ := newTestPanel(api)

	require.NoError(t, p.Run(context.Background(), strings.NewReader("r\ny\n")))

	assert.Contains(t, out.String(), ResetErrorText)
	assert.Equal(t, "2h", p.View().Total)
}

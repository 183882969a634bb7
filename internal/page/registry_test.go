package page

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/mstimer/mstimer-server/internal/errors"
	"github.com/mstimer/mstimer-server/internal/player"
	"github.com/mstimer/mstimer-server/internal/sse"
)

func TestRegistry_AttachIssuesToken(t *testing.T) {
	r, _, _ := setupTestRegistry(t, nil)

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(att.PageID, "page"))
	assert.NotEmpty(t, att.Token)
	assert.True(t, att.ExpiresAt.After(time.Now()))
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.Attached(att.PageID))

	require.NoError(t, r.AuthenticatePage(att.PageID, att.Token))
	assert.Error(t, r.AuthenticatePage(att.PageID, "garbage"))
}

func TestRegistry_AuthenticateDetachedPage(t *testing.T) {
	r, _, _ := setupTestRegistry(t, nil)
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	require.NoError(t, r.Detach(ctx, att.PageID, ReasonClient))

	err = r.AuthenticatePage(att.PageID, att.Token)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestRegistry_TokenOfOtherPageRejected(t *testing.T) {
	r, _, _ := setupTestRegistry(t, nil)

	a, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	b, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)

	assert.ErrorIs(t, r.AuthenticatePage(a.PageID, b.Token), domainerrors.ErrUnauthorized)
}

func TestRegistry_PlayerStateBindsAndRendersToPage(t *testing.T) {
	r, emitter, _ := setupTestRegistry(t, nil)
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{
		Type:   EventPlayerState,
		Player: playingState("v1", 61.5, true),
	}))

	require.Eventually(t, func() bool {
		for _, ev := range emitter.ofType(sse.EventDisplayUpdated) {
			data := ev.Data.(sse.DisplayUpdatedEventData)
			if data.Readout == string(player.ReadoutCurrent) && data.Text == "1:01.500" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	modes := emitter.ofType(sse.EventDisplayMode)
	require.NotEmpty(t, modes)
	data := modes[0].Data.(sse.DisplayModeEventData)
	assert.Equal(t, player.MarkerClass, data.Class)
	assert.True(t, data.Enabled)
	assert.Equal(t, att.PageID, modes[0].PageID)
}

func TestRegistry_RefreshDoesNotResendUnchangedText(t *testing.T) {
	r, emitter, _ := setupTestRegistry(t, nil)
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventPlayerState, Player: playingState("v1", 10, true)}))

	require.Eventually(t, func() bool { return len(emitter.ofType(sse.EventDisplayUpdated)) >= 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// One text per readout; the refresher keeps rendering the same values.
	assert.Len(t, emitter.ofType(sse.EventDisplayUpdated), 2)
}

func TestRegistry_MediaEventsCommitWatchTime(t *testing.T) {
	r, _, sender := setupTestRegistry(t, nil)
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventPlayerState, Player: playingState("v1", 0, true)}))
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventMediaPlay}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventMediaPause}))

	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_VideoSwapInSnapshotRebinds(t *testing.T) {
	r, emitter, sender := setupTestRegistry(t, nil)
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventPlayerState, Player: playingState("v1", 5, true)}))
	require.Eventually(t, func() bool { return emitter.hasText(player.ReadoutCurrent, "0:05.000") }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventPlayerState, Player: playingState("v2", 42, true)}))
	require.Eventually(t, func() bool { return emitter.hasText(player.ReadoutCurrent, "0:42.000") }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventMediaPlay}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventMediaPause}))

	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_UnloadDetachesAndFlushes(t *testing.T) {
	r, emitter, sender := setupTestRegistry(t, nil)
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventPlayerState, Player: playingState("v1", 0, false)}))
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventPageUnload}))

	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 1, sender.count())
	detached := emitter.ofType(sse.EventPageDetached)
	require.Len(t, detached, 1)
	assert.Equal(t, ReasonUnload, detached[0].Data.(sse.PageDetachedEventData).Reason)
}

func TestRegistry_DispatchUnknownPage(t *testing.T) {
	r, _, _ := setupTestRegistry(t, nil)

	err := r.Dispatch(context.Background(), "page-missing", Event{Type: EventPlayerState})
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestRegistry_DispatchRateLimited(t *testing.T) {
	r, _, _ := setupTestRegistry(t, func(o *Options) {
		o.EventRate = 1
		o.EventBurst = 1
	})
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventPlayerState}))
	err = r.Dispatch(ctx, att.PageID, Event{Type: EventPlayerState})
	assert.ErrorIs(t, err, domainerrors.ErrRateLimited)
}

func TestRegistry_ReapDetachesIdlePages(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, emitter, _ := setupTestRegistry(t, func(o *Options) {
		o.Clock = clock
		o.IdleTimeout = time.Minute
	})
	ctx := context.Background()

	stale, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	clock.Advance(45 * time.Second)
	fresh, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, r.Reap(ctx))
	assert.False(t, r.Attached(stale.PageID))
	assert.True(t, r.Attached(fresh.PageID))

	detached := emitter.ofType(sse.EventPageDetached)
	require.Len(t, detached, 1)
	assert.Equal(t, ReasonIdle, detached[0].Data.(sse.PageDetachedEventData).Reason)
}

func TestRegistry_DispatchKeepsPageAlive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, _, _ := setupTestRegistry(t, func(o *Options) {
		o.Clock = clock
		o.IdleTimeout = time.Minute
	})
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)
	clock.Advance(50 * time.Second)
	require.NoError(t, r.Dispatch(ctx, att.PageID, Event{Type: EventPlayerState}))
	clock.Advance(50 * time.Second)

	assert.Zero(t, r.Reap(ctx))
	assert.True(t, r.Attached(att.PageID))
}

func TestRegistry_CloseDetachesEverything(t *testing.T) {
	r, emitter, _ := setupTestRegistry(t, nil)

	for range 3 {
		_, err := r.Attach("https://www.youtube.com")
		require.NoError(t, err)
	}

	require.NoError(t, r.Close(context.Background()))
	assert.Zero(t, r.Count())
	assert.Len(t, emitter.ofType(sse.EventPageDetached), 3)

	_, err := r.Attach("https://www.youtube.com")
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)
}

func TestRegistry_DetachUnknownPage(t *testing.T) {
	r, _, _ := setupTestRegistry(t, nil)

	err := r.Detach(context.Background(), "page-missing", ReasonClient)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestRegistry_PageForToken(t *testing.T) {
	r, _, _ := setupTestRegistry(t, nil)
	ctx := context.Background()

	att, err := r.Attach("https://www.youtube.com")
	require.NoError(t, err)

	pageID, err := r.PageForToken(att.Token)
	require.NoError(t, err)
	assert.Equal(t, att.PageID, pageID)

	require.NoError(t, r.Detach(ctx, att.PageID, ReasonClient))
	_, err = r.PageForToken(att.Token)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstimer/mstimer-server/internal/page"
)

func playingSnapshot() *page.PlayerState {
	return &page.PlayerState{
		VideoID:         "v1",
		VideoPresent:    true,
		CurrentTime:     61.5,
		Duration:        300,
		CurrentReadout:  true,
		DurationReadout: true,
	}
}

func TestAttachPage(t *testing.T) {
	ts := setupTestServer(t)

	pageID, _ := ts.attachPage(t)

	assert.True(t, ts.pages.Attached(pageID))
}

func TestPageEvent_PlaybackCommitsWatchTime(t *testing.T) {
	ts := setupTestServer(t)
	pageID, authHeader := ts.attachPage(t)
	path := "/api/v1/pages/" + pageID + "/events"

	resp := ts.api.Post(path, authHeader, page.Event{
		Type:   page.EventDOMInserted,
		Nodes:  []page.NodeInfo{{Video: true}},
		Player: playingSnapshot(),
	})
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	// Play/pause pairs are ignored until the observer has bound the video.
	require.Eventually(t, func() bool {
		ts.api.Post(path, authHeader, page.Event{Type: page.EventMediaPlay})
		time.Sleep(2 * time.Millisecond)
		ts.api.Post(path, authHeader, page.Event{Type: page.EventMediaPause})

		total, err := ts.services.WatchTime.TotalWatchTime(context.Background())
		return err == nil && total > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPageEvent_RejectsOtherPagesToken(t *testing.T) {
	ts := setupTestServer(t)
	pageA, _ := ts.attachPage(t)
	_, authB := ts.attachPage(t)

	resp := ts.api.Post("/api/v1/pages/"+pageA+"/events", authB, page.Event{Type: page.EventMediaPlay})

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPageEvent_RejectsUnknownType(t *testing.T) {
	ts := setupTestServer(t)
	pageID, authHeader := ts.attachPage(t)

	resp := ts.api.Post("/api/v1/pages/"+pageID+"/events", authHeader, map[string]any{"type": "media.volumechange"})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	env := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "VALIDATION", env.Code)
}

func TestPageEvent_RejectsUnrenderablePosition(t *testing.T) {
	ts := setupTestServer(t)
	pageID, authHeader := ts.attachPage(t)

	snapshot := playingSnapshot()
	snapshot.CurrentTime = 1e16
	resp := ts.api.Post("/api/v1/pages/"+pageID+"/events", authHeader, page.Event{
		Type:   page.EventPlayerState,
		Player: snapshot,
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	env := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "VALIDATION", env.Code)
}

func TestPageEvent_UnloadDetaches(t *testing.T) {
	ts := setupTestServer(t)
	pageID, authHeader := ts.attachPage(t)

	resp := ts.api.Post("/api/v1/pages/"+pageID+"/events", authHeader, page.Event{Type: page.EventPageUnload})

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.False(t, ts.pages.Attached(pageID))
}

func TestDetachPage(t *testing.T) {
	ts := setupTestServer(t)
	pageID, authHeader := ts.attachPage(t)

	resp := ts.api.Delete("/api/v1/pages/"+pageID, authHeader)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.False(t, ts.pages.Attached(pageID))

	resp = ts.api.Delete("/api/v1/pages/"+pageID, authHeader)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	env := decodeError(t, resp.Body.Bytes())
	assert.Equal(t, "NOT_FOUND", env.Code)
}

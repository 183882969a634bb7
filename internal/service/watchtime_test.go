package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstimer/mstimer-server/internal/domain"
	domainerrors "github.com/mstimer/mstimer-server/internal/errors"
	"github.com/mstimer/mstimer-server/internal/logger"
	"github.com/mstimer/mstimer-server/internal/metrics"
	"github.com/mstimer/mstimer-server/internal/validation"
)

type messageLog struct {
	mu        sync.Mutex
	results   map[string]int
	committed float64
}

func (m *messageLog) Message(_, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]int)
	}
	m.results[result]++
}

func (m *messageLog) Committed(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed += seconds
}

func setupTestWatchTime(t *testing.T) (*WatchTimeService, *messageLog) {
	t.Helper()

	svc := NewWatchTimeService(setupTestStore(t), validation.New(), 0, logger.Discard())
	rec := &messageLog{}
	svc.SetRecorder(rec)
	svc.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, rec
}

func TestWatchTimeService_AcceptsBoundedDelta(t *testing.T) {
	svc, rec := setupTestWatchTime(t)
	ctx := context.Background()

	ack, err := svc.Send(ctx, domain.NewUpdateWatchTime(1.5))
	require.NoError(t, err)
	assert.True(t, ack.Success)

	ack, err = svc.Send(ctx, domain.NewUpdateWatchTime(2.25))
	require.NoError(t, err)
	assert.True(t, ack.Success)

	total, err := svc.TotalWatchTime(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 3.75, total, 1e-9)
	assert.Equal(t, 2, rec.results[metrics.ResultAccepted])
	assert.InDelta(t, 3.75, rec.committed, 1e-9)
}

func TestWatchTimeService_TotalAbsentIsZero(t *testing.T) {
	svc, _ := setupTestWatchTime(t)

	total, err := svc.TotalWatchTime(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestWatchTimeService_RejectsOutOfRange(t *testing.T) {
	svc, rec := setupTestWatchTime(t)
	ctx := context.Background()

	for _, seconds := range []float64{0, -1, 10, 3600} {
		ack, err := svc.Send(ctx, domain.NewUpdateWatchTime(seconds))
		require.Error(t, err, "seconds=%v", seconds)
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
		assert.False(t, ack.Success)
	}

	total, err := svc.TotalWatchTime(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 4, rec.results[metrics.ResultRejected])
}

func TestWatchTimeService_RejectsUnknownType(t *testing.T) {
	svc, _ := setupTestWatchTime(t)

	_, err := svc.Send(context.Background(), domain.Message{Type: "GET_TOTAL", Seconds: 1})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestWatchTimeService_ConcurrentSendersLoseNothing(t *testing.T) {
	svc, _ := setupTestWatchTime(t)
	ctx := context.Background()

	const senders, perSender = 10, 20
	var wg sync.WaitGroup
	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perSender {
				ack, err := svc.Send(ctx, domain.NewUpdateWatchTime(0.5))
				assert.NoError(t, err)
				assert.True(t, ack.Success)
			}
		}()
	}
	wg.Wait()

	total, err := svc.TotalWatchTime(ctx)
	require.NoError(t, err)
	assert.InDelta(t, senders*perSender*0.5, total, 1e-9)
}

func TestWatchTimeService_StoreFailureIsNotFatal(t *testing.T) {
	testStore := setupTestStore(t)
	svc := NewWatchTimeService(testStore, validation.New(), 0, logger.Discard())
	rec := &messageLog{}
	svc.SetRecorder(rec)
	svc.Start()
	defer func() { _ = svc.Shutdown(context.Background()) }()

	require.NoError(t, testStore.Close())

	ack, err := svc.Send(context.Background(), domain.NewUpdateWatchTime(1))
	require.NoError(t, err)
	assert.False(t, ack.Success)
	assert.Equal(t, 1, rec.results[metrics.ResultFailed])
}

func TestWatchTimeService_SendAfterShutdown(t *testing.T) {
	svc := NewWatchTimeService(setupTestStore(t), validation.New(), 0, logger.Discard())
	svc.Start()
	require.NoError(t, svc.Shutdown(context.Background()))

	_, err := svc.Send(context.Background(), domain.NewUpdateWatchTime(1))
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)
}

func TestWatchTimeService_CustomMaxDelta(t *testing.T) {
	svc := NewWatchTimeService(setupTestStore(t), validation.New(), 2*time.Second, logger.Discard())
	svc.Start()
	defer func() { _ = svc.Shutdown(context.Background()) }()

	_, err := svc.Send(context.Background(), domain.NewUpdateWatchTime(3))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

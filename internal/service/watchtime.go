// Package service holds the timer server's business logic on top of the store.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mstimer/mstimer-server/internal/domain"
	domainerrors "github.com/mstimer/mstimer-server/internal/errors"
	"github.com/mstimer/mstimer-server/internal/metrics"
	"github.com/mstimer/mstimer-server/internal/store"
	"github.com/mstimer/mstimer-server/internal/validation"
)

// MessageRecorder observes the coordinator. Optional.
type MessageRecorder interface {
	Message(msgType, result string)
	Committed(seconds float64)
}

type incrementRequest struct {
	ctx     context.Context
	seconds float64
	reply   chan error
}

// WatchTimeService is the coordinator: the single writer of the watch-time
// total. Pages send it UPDATE_WATCH_TIME messages; increments are applied one
// at a time by its goroutine.
type WatchTimeService struct {
	store     store.KeyValue
	validator *validation.Validator
	maxDelta  time.Duration
	logger    *slog.Logger
	recorder  MessageRecorder

	requests chan incrementRequest
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatchTimeService creates the coordinator. Call Start before Send.
func NewWatchTimeService(kv store.KeyValue, validator *validation.Validator, maxDelta time.Duration, logger *slog.Logger) *WatchTimeService {
	if maxDelta <= 0 {
		maxDelta = domain.MaxDelta
	}
	return &WatchTimeService{
		store:     kv,
		validator: validator,
		maxDelta:  maxDelta,
		logger:    logger,
		requests:  make(chan incrementRequest, 64),
		done:      make(chan struct{}),
	}
}

// SetRecorder attaches a metrics recorder. Call before Start.
func (s *WatchTimeService) SetRecorder(r MessageRecorder) {
	s.recorder = r
}

// Start runs the writer goroutine until Shutdown.
func (s *WatchTimeService) Start() {
	s.wg.Add(1)
	go s.run()
}

// Shutdown stops accepting messages and waits for the writer to drain.
func (s *WatchTimeService) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)
	})

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send handles one message. Invalid messages are rejected with a validation
// error. A failed store write is logged and acknowledged with success=false;
// the delta is not retried.
func (s *WatchTimeService) Send(ctx context.Context, msg domain.Message) (domain.Ack, error) {
	if err := s.validator.Validate(msg); err != nil {
		s.record(msg.Type, metrics.ResultRejected)
		return domain.Ack{}, err
	}
	if !domain.ValidDeltaWithin(msg.Seconds, s.maxDelta) {
		s.record(msg.Type, metrics.ResultRejected)
		return domain.Ack{}, domainerrors.ValidationWithDetails("seconds out of range",
			map[string]string{"seconds": "must be less than " + s.maxDelta.String()})
	}

	req := incrementRequest{ctx: ctx, seconds: msg.Seconds, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return domain.Ack{}, domainerrors.Unavailable("coordinator stopped")
	case <-ctx.Done():
		return domain.Ack{}, ctx.Err()
	}

	select {
	case err := <-req.reply:
		if err != nil {
			s.logger.Warn("failed to update watch time", "seconds", msg.Seconds, "error", err)
			s.record(msg.Type, metrics.ResultFailed)
			return domain.Ack{Success: false}, nil
		}
		s.record(msg.Type, metrics.ResultAccepted)
		if s.recorder != nil {
			s.recorder.Committed(msg.Seconds)
		}
		return domain.Ack{Success: true}, nil
	case <-ctx.Done():
		return domain.Ack{}, ctx.Err()
	}
}

// TotalWatchTime returns the persisted total in seconds, 0 when absent.
func (s *WatchTimeService) TotalWatchTime(ctx context.Context) (float64, error) {
	var total float64
	if _, err := s.store.Get(ctx, domain.KeyTotalWatchTime, &total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *WatchTimeService) run() {
	defer s.wg.Done()

	for {
		select {
		case req := <-s.requests:
			s.apply(req)
		case <-s.done:
			// Drain what was queued before shutdown.
			for {
				select {
				case req := <-s.requests:
					s.apply(req)
				default:
					return
				}
			}
		}
	}
}

func (s *WatchTimeService) apply(req incrementRequest) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- err
		return
	}
	total, err := s.store.Increment(req.ctx, domain.KeyTotalWatchTime, req.seconds)
	if err == nil {
		s.logger.Debug("watch time updated", "delta", req.seconds, "total", total)
	}
	req.reply <- err
}

func (s *WatchTimeService) record(msgType domain.MessageType, result string) {
	if s.recorder != nil {
		s.recorder.Message(string(msgType), result)
	}
}

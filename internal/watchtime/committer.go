package watchtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/mstimer/mstimer-server/internal/domain"
)

// ErrRejected is returned when the coordinator answers {success: false}.
var ErrRejected = errors.New("watch time update rejected")

// Sender delivers a message to the coordinator and returns its reply.
type Sender interface {
	Send(ctx context.Context, msg domain.Message) (domain.Ack, error)
}

// SenderCommitter commits deltas by sending UPDATE_WATCH_TIME messages.
type SenderCommitter struct {
	sender Sender
}

// NewSenderCommitter wraps sender.
func NewSenderCommitter(sender Sender) *SenderCommitter {
	return &SenderCommitter{sender: sender}
}

// Commit sends the delta and reports delivery failure or rejection as an error.
func (c *SenderCommitter) Commit(ctx context.Context, seconds float64) error {
	ack, err := c.sender.Send(ctx, domain.NewUpdateWatchTime(seconds))
	if err != nil {
		return fmt.Errorf("send update: %w", err)
	}
	if !ack.Success {
		return ErrRejected
	}
	return nil
}

// CommitterFunc adapts a function to Committer.
type CommitterFunc func(ctx context.Context, seconds float64) error

// Commit calls f.
func (f CommitterFunc) Commit(ctx context.Context, seconds float64) error {
	return f(ctx, seconds)
}

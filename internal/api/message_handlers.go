package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mstimer/mstimer-server/internal/domain"
)

func (s *Server) registerMessageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "sendMessage",
		Method:      http.MethodPost,
		Path:        "/api/v1/messages",
		Summary:     "Send a message to the coordinator",
		Description: "Adds an UPDATE_WATCH_TIME delta to the stored total. A failed write is reported as success=false.",
		Tags:        []string{"Messages"},
		Security:    []map[string][]string{{"pageToken": {}}},
	}, s.handleSendMessage)
}

// SendMessageInput carries a message from an attached page.
type SendMessageInput struct {
	Authorization string `header:"Authorization" doc:"Bearer page token"`
	Body          domain.Message
}

// SendMessageOutput wraps the coordinator's acknowledgement.
type SendMessageOutput struct {
	Body domain.Ack
}

func (s *Server) handleSendMessage(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
	token, err := bearerToken(input.Authorization)
	if err != nil {
		return nil, fail(err)
	}
	if _, err := s.services.Pages.PageForToken(token); err != nil {
		return nil, fail(err)
	}

	ack, err := s.services.WatchTime.Send(ctx, input.Body)
	if err != nil {
		return nil, fail(err)
	}
	return &SendMessageOutput{Body: ack}, nil
}

package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mstimer/mstimer-server/internal/page"
)

func (s *Server) registerPageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "attachPage",
		Method:        http.MethodPost,
		Path:          "/api/v1/pages",
		Summary:       "Attach a page",
		Description:   "Registers a video page and starts its player observer. Returns the page token used by every later call.",
		Tags:          []string{"Pages"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAttachPage)

	huma.Register(s.api, huma.Operation{
		OperationID:   "postPageEvent",
		Method:        http.MethodPost,
		Path:          "/api/v1/pages/{id}/events",
		Summary:       "Report a page event",
		Tags:          []string{"Pages"},
		Security:      []map[string][]string{{"pageToken": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handlePageEvent)

	huma.Register(s.api, huma.Operation{
		OperationID:   "detachPage",
		Method:        http.MethodDelete,
		Path:          "/api/v1/pages/{id}",
		Summary:       "Detach a page",
		Description:   "Stops the page's observer after flushing pending watch time",
		Tags:          []string{"Pages"},
		Security:      []map[string][]string{{"pageToken": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDetachPage)
}

// AttachPageInput identifies the page's origin.
type AttachPageInput struct {
	Origin string `header:"Origin" doc:"Origin of the video page"`
}

// AttachPageOutput returns the page id and token.
type AttachPageOutput struct {
	Body page.Attachment
}

// PageEventInput carries one event from a page shim.
type PageEventInput struct {
	ID            string `path:"id" doc:"Page ID"`
	Authorization string `header:"Authorization" doc:"Bearer page token"`
	Body          page.Event
}

// DetachPageInput identifies the page to detach.
type DetachPageInput struct {
	ID            string `path:"id" doc:"Page ID"`
	Authorization string `header:"Authorization" doc:"Bearer page token"`
}

func (s *Server) handleAttachPage(_ context.Context, input *AttachPageInput) (*AttachPageOutput, error) {
	attachment, err := s.services.Pages.Attach(input.Origin)
	if err != nil {
		return nil, fail(err)
	}
	return &AttachPageOutput{Body: attachment}, nil
}

func (s *Server) handlePageEvent(ctx context.Context, input *PageEventInput) (*struct{}, error) {
	if err := s.authenticatePage(input.Authorization, input.ID); err != nil {
		return nil, fail(err)
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, fail(err)
	}
	if err := s.services.Pages.Dispatch(ctx, input.ID, input.Body); err != nil {
		return nil, fail(err)
	}
	return nil, nil
}

func (s *Server) handleDetachPage(ctx context.Context, input *DetachPageInput) (*struct{}, error) {
	if err := s.authenticatePage(input.Authorization, input.ID); err != nil {
		return nil, fail(err)
	}
	if err := s.services.Pages.Detach(ctx, input.ID, page.ReasonClient); err != nil {
		return nil, fail(err)
	}
	return nil, nil
}

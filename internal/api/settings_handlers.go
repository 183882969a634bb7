package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mstimer/mstimer-server/internal/domain"
)

func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/api/v1/settings",
		Summary:     "Get display settings",
		Tags:        []string{"Settings"},
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateSettings",
		Method:      http.MethodPatch,
		Path:        "/api/v1/settings",
		Summary:     "Update display settings",
		Description: "Changing show_milliseconds re-renders every bound player",
		Tags:        []string{"Settings"},
	}, s.handleUpdateSettings)
}

// SettingsOutput wraps the preferences for Huma.
type SettingsOutput struct {
	Body domain.Preferences
}

// UpdateSettingsInput is the PATCH body. Omitted fields are left unchanged.
type UpdateSettingsInput struct {
	Body struct {
		ShowMilliseconds *bool `json:"show_milliseconds,omitempty" doc:"Render the millisecond component"`
	}
}

func (s *Server) handleGetSettings(ctx context.Context, _ *struct{}) (*SettingsOutput, error) {
	prefs, err := s.services.Settings.Preferences(ctx)
	if err != nil {
		return nil, fail(err)
	}
	return &SettingsOutput{Body: prefs}, nil
}

func (s *Server) handleUpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	if input.Body.ShowMilliseconds == nil {
		return s.handleGetSettings(ctx, nil)
	}
	prefs, err := s.services.Settings.SetShowMilliseconds(ctx, *input.Body.ShowMilliseconds)
	if err != nil {
		return nil, fail(err)
	}
	return &SettingsOutput{Body: prefs}, nil
}

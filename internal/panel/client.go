package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mstimer/mstimer-server/internal/domain"
)

// DefaultTimeout bounds every request made by Client.
const DefaultTimeout = 5 * time.Second

// APIError is an error response decoded from the server's envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// envelope covers both the success and the error shape of a response.
type envelope struct {
	Version int             `json:"v"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

// Client talks to the timer server's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Stats fetches the accumulated watch time.
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats)
	return stats, err
}

// Settings fetches the display preferences.
func (c *Client) Settings(ctx context.Context) (domain.Preferences, error) {
	var prefs domain.Preferences
	err := c.do(ctx, http.MethodGet, "/api/v1/settings", nil, &prefs)
	return prefs, err
}

// SetShowMilliseconds stores the milliseconds preference.
func (c *Client) SetShowMilliseconds(ctx context.Context, show bool) (domain.Preferences, error) {
	var prefs domain.Preferences
	body := map[string]bool{"show_milliseconds": show}
	err := c.do(ctx, http.MethodPatch, "/api/v1/settings", body, &prefs)
	return prefs, err
}

// Reset clears the statistics and returns the fresh totals.
func (c *Client) Reset(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	err := c.do(ctx, http.MethodPost, "/api/v1/stats/reset", map[string]any{}, &stats)
	return stats, err
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: msg}
	}

	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

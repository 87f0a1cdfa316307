package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/me/wftemplates/pkg/model"
)

// Client is an HTTP client for the template server API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates an API client for the API root baseURL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// StatusError is returned for non-2xx responses of the template routes.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// apiResponse is the parsed envelope of the operational routes.
type apiResponse struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// get performs a GET request and returns the status and body.
func (c *Client) get(ctx context.Context, path string) (int, []byte, error) {
	url := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.Logger.Debug("HTTP request", "method", http.MethodGet, "url", url)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "bytes", len(body))
	return resp.StatusCode, body, nil
}

// GetJSON decodes a bare JSON response into v.
func (c *Client) GetJSON(ctx context.Context, path string, v any) error {
	status, body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		var eb model.ErrorBody
		if json.Unmarshal(body, &eb) != nil || eb.Error == "" {
			eb.Error = strings.TrimSpace(string(body))
		}
		return &StatusError{Status: status, Message: eb.Error}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// GetEnvelope performs a GET against an operational route.
func (c *Client) GetEnvelope(ctx context.Context, path string) (*apiResponse, error) {
	status, body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w\nbody: %s", status, err, string(body))
	}
	if apiResp.Status == "error" && apiResp.Error != nil {
		return &apiResp, apiResp.Error
	}
	return &apiResp, nil
}

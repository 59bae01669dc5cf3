package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Warden API.
type Config struct {
	APIURL      string // Base URL, e.g. "http://localhost:8080"
	AdminSecret string // X-Admin-Secret for moderator-only endpoints (optional)
}

// WardenClient is a pure HTTP client for the Warden API.
type WardenClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewWardenClient creates a new client for the Warden API.
func NewWardenClient(cfg Config) *WardenClient {
	return &WardenClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *WardenClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.AdminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.cfg.AdminSecret)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// AnalyzeLog runs the detection engine against a stored log entry.
func (c *WardenClient) AnalyzeLog(ctx context.Context, logID string, batchMode bool) (json.RawMessage, error) {
	body := map[string]any{"logId": logID}
	if batchMode {
		body["batchMode"] = true
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/analyze", nil, body)
}

// GetPlayerRisk returns a player's current risk score and flag state.
func (c *WardenClient) GetPlayerRisk(ctx context.Context, playerID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/players/"+playerID+"/risk", nil, nil)
}

// ListPendingAlerts returns alerts awaiting human review, oldest first.
func (c *WardenClient) ListPendingAlerts(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/alerts/pending", q, nil)
}

// ListPlayerAlerts returns a player's alert history, newest first.
func (c *WardenClient) ListPlayerAlerts(ctx context.Context, playerID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/players/"+playerID+"/alerts", q, nil)
}

// ListPlayerAudit returns the automated actions taken against a player.
func (c *WardenClient) ListPlayerAudit(ctx context.Context, playerID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/players/"+playerID+"/audit", q, nil)
}

// SetAlertStatus transitions an alert through the review workflow.
func (c *WardenClient) SetAlertStatus(ctx context.Context, alertID, status string) (json.RawMessage, error) {
	body := map[string]string{"status": status}
	return c.doRequest(ctx, http.MethodPost, "/v1/alerts/"+alertID+"/status", nil, body)
}

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		Env:               "development",
		LogLevel:          "error",
		RecentLogWindow:   100,
		InvocationTimeout: 10,
		AdminSecret:       "test-secret",
	}
}

// newTestServer creates an in-memory server
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy, got %s", resp.Status)
	}
	if resp.Checks["database"] != "in-memory" {
		t.Errorf("expected in-memory database check, got %s", resp.Checks["database"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Not ready until Run() marks it
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before ready, got %d", w.Code)
	}

	s.ready.Store(true)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after ready, got %d", w.Code)
	}
}

func TestIngestAndAnalyzeThroughRouter(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"playerId":   "p1",
		"actionType": "level_up",
		"valueDiff":  50,
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		LogID    string `json:"logId"`
		Analysis struct {
			DetectionsTriggered int `json:"detectionsTriggered"`
			NewRiskScore        int `json:"newRiskScore"`
		} `json:"analysis"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.LogID == "" {
		t.Error("expected a logId in the response")
	}
	// A 50-level jump trips the impossible value rule (critical, 25 points)
	if resp.Analysis.DetectionsTriggered != 1 {
		t.Errorf("expected 1 detection, got %d", resp.Analysis.DetectionsTriggered)
	}
	if resp.Analysis.NewRiskScore != 25 {
		t.Errorf("expected risk score 25, got %d", resp.Analysis.NewRiskScore)
	}

	// The score endpoint reflects the update
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/players/p1/risk", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var risk struct {
		TotalRiskScore int `json:"totalRiskScore"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &risk); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if risk.TotalRiskScore != 25 {
		t.Errorf("expected risk score 25, got %d", risk.TotalRiskScore)
	}
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/rules", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without secret, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/rules", nil)
	req.Header.Set("X-Admin-Secret", "test-secret")
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with secret, got %d", w.Code)
	}
}

func TestRuleConfigSeeded(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/rules", nil)
	req.Header.Set("X-Admin-Secret", "test-secret")
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Rules []struct {
			Key string `json:"key"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	keys := make(map[string]bool)
	for _, r := range resp.Rules {
		keys[r.Key] = true
	}
	for _, want := range []string{"auto_flag_threshold", "auto_flag_enabled"} {
		if !keys[want] {
			t.Errorf("expected seeded rule config key %q", want)
		}
	}
}

func TestModeratorRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"status": "reviewed"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/alerts/alert_x/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without secret, got %d", w.Code)
	}
}

func TestInvalidIDParamRejected(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/players/bad%20id!/risk", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", w.Code)
	}
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/sessions"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TWILIO_AUTH_TOKEN", "twilio-token")
	t.Setenv("VOXBRIDGE_PUBLIC_URL", "https://bridge.example.com")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	return cfg
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "ok\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestReadyHandler_AllConfigured(t *testing.T) {
	cfg := testConfig(t)
	mgr := sessions.NewManager()
	mgr.Create("telephony-stream", nil)

	rec := httptest.NewRecorder()
	ReadyHandler{Config: cfg, Sessions: mgr}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		OK                 bool     `json:"ok"`
		ActiveSessions     int      `json:"active_sessions"`
		SignatureValidated bool     `json:"signature_validated"`
		Issues             []string `json:"issues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.OK || len(resp.Issues) != 0 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.ActiveSessions != 1 {
		t.Fatalf("active sessions = %d, want 1", resp.ActiveSessions)
	}
	if !resp.SignatureValidated {
		t.Fatal("signature validation should be on with a token configured")
	}
}

func TestReadyHandler_ReportsMissingCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAIAPIKey = ""
	cfg.TwilioAuthToken = ""

	rec := httptest.NewRecorder()
	ReadyHandler{Config: cfg, Sessions: sessions.NewManager()}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	// Degraded but serving: report issues without failing the probe.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		OK     bool     `json:"ok"`
		Issues []string `json:"issues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.OK {
		t.Fatal("ok = true with missing credentials")
	}
	joined := strings.Join(resp.Issues, "; ")
	if !strings.Contains(joined, "api key") || !strings.Contains(joined, "auth token") {
		t.Fatalf("issues = %v", resp.Issues)
	}
}

func TestNotFoundHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var env struct {
		Error   map[string]any `json:"error"`
		Success bool           `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Success || env.Error == nil {
		t.Fatalf("envelope = %+v", env)
	}
}

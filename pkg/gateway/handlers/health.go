package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config   config.Config
	Sessions *sessions.Manager
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                 bool     `json:"ok"`
		ActiveSessions     int      `json:"active_sessions"`
		SignatureValidated bool     `json:"signature_validated"`
		PersistenceEnabled bool     `json:"persistence_enabled"`
		Issues             []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "model api key not configured")
	}
	if !h.Config.SignatureValidationEnabled() {
		if h.Config.TwilioAuthToken == "" {
			issues = append(issues, "telephony auth token not configured, webhook signatures unchecked")
		} else {
			issues = append(issues, "webhook signature validation explicitly disabled")
		}
	}

	active := 0
	if h.Sessions != nil {
		active = h.Sessions.Count()
	}

	// Missing credentials degrade specific routes but the process itself is
	// serving; report issues without failing readiness.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:                 len(issues) == 0,
		ActiveSessions:     active,
		SignatureValidated: h.Config.SignatureValidationEnabled(),
		PersistenceEnabled: h.Config.DatabaseURL != "",
		Issues:             issues,
	})
}

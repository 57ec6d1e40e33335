package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voxbridge/voxbridge/pkg/gateway/apierror"
	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	"github.com/voxbridge/voxbridge/pkg/gateway/metrics"
	"github.com/voxbridge/voxbridge/pkg/gateway/mw"
	"github.com/voxbridge/voxbridge/pkg/gateway/ratelimit"
)

// SDPHandler relays a browser's SDP offer to the model's signaling endpoint
// and hands the answer straight back. The SDP payload is opaque to the
// gateway in both directions.
type SDPHandler struct {
	Config  config.Config
	Client  *http.Client
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Limiter *ratelimit.Limiter
}

func (h SDPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "method not allowed",
		})
		return
	}

	if d := h.Limiter.AcquireRelay(ratelimit.CallerKey(r.RemoteAddr), time.Now()); !d.Allowed {
		h.Metrics.RecordError("sdp-relay")
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrRateLimited,
			Message: "too many signaling requests",
		})
		return
	}

	offer, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.Config.MaxSDPBytes))
	if err != nil {
		h.Metrics.RecordError("sdp-relay")
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "offer exceeds size limit",
			Param:   "body",
		})
		return
	}
	if len(strings.TrimSpace(string(offer))) == 0 {
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "offer body is empty",
			Param:   "body",
		})
		return
	}
	if h.Config.OpenAIAPIKey == "" {
		h.Metrics.RecordError("sdp-relay")
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrInternal,
			Message: "model credential not configured",
		})
		return
	}

	upReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.Config.SignalingURL(), strings.NewReader(string(offer)))
	if err != nil {
		h.Metrics.RecordError("sdp-relay")
		apierror.Write(w, reqID, &apierror.Error{Type: apierror.ErrInternal, Message: "internal error"})
		return
	}
	upReq.Header.Set("Authorization", "Bearer "+h.Config.OpenAIAPIKey)
	upReq.Header.Set("Content-Type", "application/sdp")
	upReq.Header.Set("OpenAI-Beta", "realtime=v1")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(upReq)
	if err != nil {
		h.Metrics.RecordError("sdp-relay")
		logger.Error("signaling relay failed", "request_id", reqID, "err", err)
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrUpstream,
			Message: "signaling endpoint unreachable",
		})
		return
	}
	defer resp.Body.Close()

	h.Metrics.RecordSDPRelay(resp.StatusCode)
	logger.Info("sdp relayed", "request_id", reqID, "upstream_status", resp.StatusCode)

	// Status, content type, and body pass through untouched so the browser
	// negotiates against the real answer, including upstream failures.
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

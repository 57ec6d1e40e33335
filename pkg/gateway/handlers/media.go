package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/gateway/apierror"
	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/realtime"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/session"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/sessions"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/transport"
	"github.com/voxbridge/voxbridge/pkg/gateway/metrics"
	"github.com/voxbridge/voxbridge/pkg/gateway/mw"
	"github.com/voxbridge/voxbridge/pkg/gateway/ratelimit"
	"github.com/voxbridge/voxbridge/pkg/gateway/store"
	"github.com/voxbridge/voxbridge/pkg/gateway/tools"
)

// MediaHandler accepts the carrier's media-stream WebSocket and runs a
// bridged session for the call's lifetime.
type MediaHandler struct {
	Config       config.Config
	Sessions     *sessions.Manager
	Registry     *tools.Registry
	Instructions string
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Recorder     store.Recorder
	Limiter      *ratelimit.Limiter

	// DialModel overrides the model leg; tests inject fakes here.
	DialModel session.ModelDialer
}

func (h MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Reject over-capacity calls before the upgrade so the carrier sees a
	// plain HTTP failure and can retry.
	permit := h.Limiter.AcquireCall()
	if !permit.Allowed {
		h.Metrics.RecordError("media-stream")
		logger.Warn("call rejected at capacity", "request_id", reqID)
		apierror.Write(w, reqID, &apierror.Error{
			Type:    apierror.ErrRateLimited,
			Message: "call capacity reached",
		})
		return
	}
	defer permit.Permit.Release()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("media stream upgrade failed", "request_id", reqID, "err", err)
		return
	}

	adapter := transport.NewMediaStreamAdapter(conn, logger, h.Config.WSWriteTimeout)

	dial := h.DialModel
	if dial == nil {
		dial = h.realtimeDialer()
	}

	sess := h.Sessions.Create(adapter.Kind(), nil)
	logger = logger.With("session_id", sess.ID)

	recorder := h.Recorder
	if recorder == nil {
		recorder = store.NopRecorder{}
	}
	if err := recorder.Start(r.Context(), store.CallRecord{
		SessionID: sess.ID,
		Transport: adapter.Kind(),
		StartedAt: sess.StartedAt,
	}); err != nil {
		logger.Warn("call record start failed", "err", err)
	}

	var agent *session.AgentSession
	agent = session.New(session.Config{
		ID:                  sess.ID,
		Adapter:             adapter,
		DialModel:           dial,
		Registry:            h.Registry,
		Logger:              logger,
		Metrics:             h.Metrics,
		ConnectBufferFrames: h.Config.ConnectBufferFrames,
		DialTimeout:         h.Config.ModelDialTimeout,
		ToolTimeout:         h.Config.ToolTimeout,
		OnClose: func(reason string) {
			h.Sessions.SetStreamSID(sess.ID, adapter.StreamSID())
			// The request context dies with the hijacked connection; use a
			// short detached context for the final write.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := recorder.End(ctx, sess.ID, time.Now().UTC(), reason, agent.ToolCalls()); err != nil {
				logger.Warn("call record end failed", "err", err)
			}
		},
	})
	h.Sessions.SetCancel(sess.ID, agent.Cancel)

	defer h.Sessions.Destroy(sess.ID)
	agent.Run(r.Context())
}

func (h MediaHandler) realtimeDialer() session.ModelDialer {
	return func(ctx context.Context) (session.ModelConn, error) {
		return realtime.Dial(ctx, realtime.Config{
			APIKey:       h.Config.OpenAIAPIKey,
			URL:          h.Config.RealtimeSessionURL(),
			Voice:        h.Config.RealtimeVoice,
			Instructions: h.Instructions,
			Tools:        h.Registry.Definitions(),
			WriteTimeout: h.Config.WSWriteTimeout,
			Logger:       h.Logger,
		})
	}
}

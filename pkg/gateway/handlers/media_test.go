package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/gateway/live/realtime"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/session"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/sessions"
	"github.com/voxbridge/voxbridge/pkg/gateway/ratelimit"
	"github.com/voxbridge/voxbridge/pkg/gateway/tools"
)

type stubModel struct {
	mu       sync.Mutex
	events   chan realtime.Event
	appended [][]byte
	results  []stubResult
	closed   bool
}

type stubResult struct {
	callID string
	output map[string]any
}

func newStubModel() *stubModel {
	return &stubModel{events: make(chan realtime.Event, 64)}
}

func (m *stubModel) Events() <-chan realtime.Event { return m.events }

func (m *stubModel) AppendAudio(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.appended = append(m.appended, buf)
	return nil
}

func (m *stubModel) SendToolResult(callID string, output map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, stubResult{callID, output})
	return nil
}

func (m *stubModel) CancelResponse() error { return nil }

func (m *stubModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

func (m *stubModel) appendedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appended)
}

func (m *stubModel) resultList() []stubResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stubResult, len(m.results))
	copy(out, m.results)
	return out
}

type greetTool struct{}

func (greetTool) Name() string { return "greet" }

func (greetTool) Definition() tools.Definition {
	return tools.Definition{Type: "function", Name: "greet"}
}

func (greetTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"greeting": "hello " + args["who"].(string)}, nil
}

func newMediaServer(t *testing.T, mgr *sessions.Manager, dial session.ModelDialer) *httptest.Server {
	t.Helper()
	cfg := testConfig(t)
	h := MediaHandler{
		Config:    cfg,
		Sessions:  mgr,
		Registry:  tools.NewRegistry(greetTool{}),
		Logger:    discardLogger(),
		DialModel: dial,
	}
	return httptest.NewServer(h)
}

func dialMedia(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial media stream: %v", err)
	}
	return conn
}

func sendStart(t *testing.T, conn *websocket.Conn, streamSID string) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": "start", "streamSid": streamSID}); err != nil {
		t.Fatalf("send start: %v", err)
	}
}

func sendMedia(t *testing.T, conn *websocket.Conn, mulaw []byte) {
	t.Helper()
	err := conn.WriteJSON(map[string]any{
		"event": "media",
		"media": map[string]any{"payload": base64.StdEncoding.EncodeToString(mulaw)},
	})
	if err != nil {
		t.Fatalf("send media: %v", err)
	}
}

func TestMediaHandler_BridgesAudioBothWays(t *testing.T) {
	model := newStubModel()
	mgr := sessions.NewManager()
	srv := newMediaServer(t, mgr, func(ctx context.Context) (session.ModelConn, error) {
		return model, nil
	})
	defer srv.Close()

	conn := dialMedia(t, srv)
	defer conn.Close()

	sendStart(t, conn, "MZ100")
	sendMedia(t, conn, make([]byte, 160))

	deadline := time.Now().Add(2 * time.Second)
	for model.appendedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if model.appendedCount() == 0 {
		t.Fatal("caller audio never reached the model leg")
	}

	// Model speaks: 480 samples at the model rate.
	model.events <- realtime.Event{Type: realtime.EventAudioDelta, Audio: make([]byte, 960)}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read outbound frame: %v", err)
	}
	var out struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("outbound frame not json: %v", err)
	}
	if out.Event != "media" || out.StreamSID != "MZ100" {
		t.Fatalf("outbound frame = %+v", out)
	}
	mulaw, err := base64.StdEncoding.DecodeString(out.Media.Payload)
	if err != nil || len(mulaw) != 160 {
		t.Fatalf("payload = %d mulaw bytes, err %v, want 160", len(mulaw), err)
	}
}

func TestMediaHandler_ToolCallRoundTrip(t *testing.T) {
	model := newStubModel()
	mgr := sessions.NewManager()
	srv := newMediaServer(t, mgr, func(ctx context.Context) (session.ModelConn, error) {
		return model, nil
	})
	defer srv.Close()

	conn := dialMedia(t, srv)
	defer conn.Close()
	sendStart(t, conn, "MZ200")

	model.events <- realtime.Event{Type: realtime.EventToolCall, ToolCall: &realtime.ToolCall{
		CallID:    "call_media_1",
		Name:      "greet",
		Arguments: map[string]any{"who": "caller"},
	}}

	deadline := time.Now().Add(2 * time.Second)
	for len(model.resultList()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	results := model.resultList()
	if len(results) != 1 || results[0].callID != "call_media_1" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].output["greeting"] != "hello caller" {
		t.Fatalf("output = %v", results[0].output)
	}
}

func TestMediaHandler_SessionsAreIsolated(t *testing.T) {
	mgr := sessions.NewManager()
	var mu sync.Mutex
	models := make([]*stubModel, 0, 2)
	srv := newMediaServer(t, mgr, func(ctx context.Context) (session.ModelConn, error) {
		m := newStubModel()
		mu.Lock()
		models = append(models, m)
		mu.Unlock()
		return m, nil
	})
	defer srv.Close()

	connA := dialMedia(t, srv)
	defer connA.Close()
	connB := dialMedia(t, srv)
	defer connB.Close()
	sendStart(t, connA, "MZ-A")
	sendStart(t, connB, "MZ-B")

	deadline := time.Now().Add(2 * time.Second)
	dialed := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(models)
	}
	for (mgr.Count() < 2 || dialed() < 2) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mgr.Count() != 2 || dialed() != 2 {
		t.Fatalf("sessions = %d, model legs = %d, want 2/2", mgr.Count(), dialed())
	}

	// Only the first caller sends audio; only its model leg may see it.
	sendMedia(t, connA, make([]byte, 160))

	mu.Lock()
	a, b := models[0], models[1]
	mu.Unlock()
	for a.appendedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if a.appendedCount() == 0 {
		t.Fatal("first session never received its audio")
	}
	if b.appendedCount() != 0 {
		t.Fatal("audio leaked into the second session")
	}
}

func TestMediaHandler_CleanupOnHangup(t *testing.T) {
	model := newStubModel()
	mgr := sessions.NewManager()
	srv := newMediaServer(t, mgr, func(ctx context.Context) (session.ModelConn, error) {
		return model, nil
	})
	defer srv.Close()

	conn := dialMedia(t, srv)
	defer conn.Close()
	sendStart(t, conn, "MZ300")

	deadline := time.Now().Add(2 * time.Second)
	for mgr.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := conn.WriteJSON(map[string]any{"event": "stop"}); err != nil {
		t.Fatalf("send stop: %v", err)
	}

	for mgr.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mgr.Count() != 0 {
		t.Fatal("session not destroyed after hangup")
	}
	model.mu.Lock()
	closed := model.closed
	model.mu.Unlock()
	if !closed {
		t.Fatal("model leg left open after hangup")
	}
}

func TestMediaHandler_RejectsCallsOverCapacity(t *testing.T) {
	model := newStubModel()
	mgr := sessions.NewManager()
	h := MediaHandler{
		Config:   testConfig(t),
		Sessions: mgr,
		Registry: tools.NewRegistry(greetTool{}),
		Logger:   discardLogger(),
		Limiter:  ratelimit.New(ratelimit.Config{MaxConcurrentCalls: 1}),
		DialModel: func(ctx context.Context) (session.ModelConn, error) {
			return model, nil
		},
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	first := dialMedia(t, srv)
	defer first.Close()
	sendStart(t, first, "MZ400")

	deadline := time.Now().Add(2 * time.Second)
	for mgr.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("second call should be rejected at capacity")
	}
	if resp == nil || resp.StatusCode != 429 {
		t.Fatalf("expected HTTP 429 before upgrade, got %+v", resp)
	}

	// Hanging up frees the slot for the next call.
	if err := first.WriteJSON(map[string]any{"event": "stop"}); err != nil {
		t.Fatalf("send stop: %v", err)
	}
	for mgr.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// The slot is released just after the session entry is removed, so
	// retry briefly.
	var third *websocket.Conn
	for time.Now().Before(deadline) {
		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err == nil {
			third = c
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if third == nil {
		t.Fatal("slot never freed after hangup")
	}
	third.Close()
}

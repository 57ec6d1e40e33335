// Package session runs one live call: it bridges a caller leg to a model
// leg, relays audio both ways, and dispatches tool calls without blocking
// the audio path.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxbridge/voxbridge/pkg/gateway/live/realtime"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/transport"
	"github.com/voxbridge/voxbridge/pkg/gateway/metrics"
	"github.com/voxbridge/voxbridge/pkg/gateway/tools"
)

// State is the session lifecycle. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ModelConn is the session's view of the model leg. *realtime.Client
// satisfies it; tests substitute fakes.
type ModelConn interface {
	Events() <-chan realtime.Event
	AppendAudio(pcm []byte) error
	SendToolResult(callID string, output map[string]any) error
	CancelResponse() error
	Close() error
}

// ModelDialer opens the model leg. The context carries the dial deadline.
type ModelDialer func(ctx context.Context) (ModelConn, error)

// clearer is implemented by caller legs that can flush queued playback.
type clearer interface {
	SendClear() error
}

type Config struct {
	ID        string
	Adapter   transport.Adapter
	DialModel ModelDialer
	Registry  *tools.Registry
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// Audio frames buffered while the model leg is still connecting.
	// Oldest frames drop first once full.
	ConnectBufferFrames int

	DialTimeout time.Duration
	ToolTimeout time.Duration

	// OnClose runs exactly once after teardown with the close reason.
	OnClose func(reason string)
}

// AgentSession owns both legs of one call.
type AgentSession struct {
	cfg    Config
	logger *slog.Logger

	state     atomic.Int32
	toolCalls atomic.Int64

	mu       sync.Mutex
	canceled bool
	cancel   context.CancelFunc
}

func New(cfg Config) *AgentSession {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", cfg.ID, "transport", cfg.Adapter.Kind())
	if cfg.ConnectBufferFrames <= 0 {
		cfg.ConnectBufferFrames = 50
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 15 * time.Second
	}
	s := &AgentSession{cfg: cfg, logger: logger}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *AgentSession) State() State {
	return State(s.state.Load())
}

// ToolCalls reports how many tool invocations this session dispatched.
func (s *AgentSession) ToolCalls() int {
	return int(s.toolCalls.Load())
}

// advance moves the lifecycle forward; it never moves backward.
func (s *AgentSession) advance(to State) bool {
	for {
		cur := s.state.Load()
		if cur >= int32(to) {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// Cancel asks the session to shut down. Safe from any goroutine, including
// before Run starts.
func (s *AgentSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = true
	if s.cancel != nil {
		s.cancel()
	}
}

type dialResult struct {
	conn ModelConn
	err  error
}

// Run drives the session to completion. It returns after both legs are
// closed; the caller owns goroutine placement.
func (s *AgentSession) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	if s.canceled {
		cancel()
	}
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	reason := "normal"
	defer func() {
		s.cfg.Metrics.RecordSessionEnd(s.cfg.Adapter.Kind(), reason, time.Since(start))
		if s.cfg.OnClose != nil {
			s.cfg.OnClose(reason)
		}
	}()
	s.cfg.Metrics.RecordSessionStart()

	readCh := make(chan transport.Frame, 32)
	readErrCh := make(chan error, 1)
	go func() {
		defer close(readCh)
		for {
			frame, err := s.cfg.Adapter.Receive()
			if err != nil {
				readErrCh <- err
				return
			}
			select {
			case readCh <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	dialCh := make(chan dialResult, 1)
	go func() {
		dialCtx, dialCancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
		defer dialCancel()
		conn, err := s.cfg.DialModel(dialCtx)
		dialCh <- dialResult{conn, err}
	}()

	// Caller audio that arrives before the model leg is up is held in a
	// bounded buffer so the opening words of the call are not lost.
	var model ModelConn
	pending := make([][]byte, 0, s.cfg.ConnectBufferFrames)

connect:
	for {
		select {
		case <-ctx.Done():
			reason = "canceled"
			s.teardown(nil)
			return
		case err := <-readErrCh:
			reason = "caller-disconnected"
			s.logger.Info("caller leg closed during connect", "err", err)
			s.teardown(nil)
			return
		case frame, ok := <-readCh:
			if !ok {
				continue
			}
			if frame.Event != nil {
				if frame.Event.Name == "stop" {
					reason = "caller-hangup"
					s.teardown(nil)
					return
				}
				continue
			}
			if len(pending) >= s.cfg.ConnectBufferFrames {
				pending = pending[1:]
			}
			pending = append(pending, frame.Audio)
		case res := <-dialCh:
			if res.err != nil {
				reason = "model-dial-failed"
				s.cfg.Metrics.RecordError("model-dial")
				s.logger.Error("model leg dial failed", "err", res.err)
				s.teardown(nil)
				return
			}
			model = res.conn
			break connect
		}
	}

	s.advance(StateActive)
	s.logger.Info("session active", "buffered_frames", len(pending))
	for _, pcm := range pending {
		if err := model.AppendAudio(pcm); err != nil {
			s.logger.Warn("flush of buffered audio failed", "err", err)
			break
		}
	}
	pending = nil

	toolResultCh := make(chan tools.Result, 8)

	for {
		select {
		case <-ctx.Done():
			reason = "canceled"
			s.teardown(model)
			return

		case err := <-readErrCh:
			reason = "caller-disconnected"
			s.logger.Info("caller leg closed", "err", err)
			s.teardown(model)
			return

		case frame, ok := <-readCh:
			if !ok {
				continue
			}
			if frame.Event != nil {
				switch frame.Event.Name {
				case "stop":
					reason = "caller-hangup"
					s.teardown(model)
					return
				case "mark":
					s.logger.Debug("playback mark", "mark", frame.Event.MarkName)
				}
				continue
			}
			s.cfg.Metrics.RecordAudio("inbound", len(frame.Audio))
			if err := model.AppendAudio(frame.Audio); err != nil {
				reason = "model-write-failed"
				s.cfg.Metrics.RecordError("model-write")
				s.logger.Error("audio relay to model failed", "err", err)
				s.teardown(model)
				return
			}

		case ev, ok := <-model.Events():
			if !ok {
				reason = "model-closed"
				s.teardown(model)
				return
			}
			switch ev.Type {
			case realtime.EventAudioDelta:
				s.cfg.Metrics.RecordAudio("outbound", len(ev.Audio))
				if err := s.cfg.Adapter.Send(ev.Audio); err != nil {
					reason = "caller-write-failed"
					s.cfg.Metrics.RecordError("caller-write")
					s.logger.Error("audio relay to caller failed", "err", err)
					s.teardown(model)
					return
				}
			case realtime.EventToolCall:
				s.dispatchTool(ctx, *ev.ToolCall, toolResultCh)
			case realtime.EventSpeechStarted:
				s.bargeIn(model)
			case realtime.EventError:
				reason = "model-error"
				s.cfg.Metrics.RecordError("model")
				s.logger.Error("model leg failed", "err", ev.Err)
				s.teardown(model)
				return
			}

		case res := <-toolResultCh:
			if s.State() != StateActive {
				s.logger.Info("tool result discarded after close", "call_id", res.CallID)
				continue
			}
			s.cfg.Metrics.RecordToolCall(res.Name, res.Success)
			if err := model.SendToolResult(res.CallID, res.Output()); err != nil {
				s.logger.Error("tool result injection failed", "call_id", res.CallID, "err", err)
			}
		}
	}
}

// dispatchTool runs the tool off the audio path. The result returns through
// toolResultCh so injection stays on the session goroutine.
func (s *AgentSession) dispatchTool(ctx context.Context, call realtime.ToolCall, toolResultCh chan<- tools.Result) {
	s.toolCalls.Add(1)
	s.logger.Info("tool call", "call_id", call.CallID, "tool", call.Name)
	go func() {
		toolCtx, toolCancel := context.WithTimeout(ctx, s.cfg.ToolTimeout)
		defer toolCancel()
		res := s.cfg.Registry.Invoke(toolCtx, tools.Request{
			CallID: call.CallID,
			Name:   call.Name,
			Args:   call.Arguments,
		})
		select {
		case toolResultCh <- res:
		case <-ctx.Done():
		}
	}()
}

// bargeIn reacts to the caller speaking over the model: flush queued
// playback on the caller leg and cancel the in-flight response.
func (s *AgentSession) bargeIn(model ModelConn) {
	s.logger.Debug("caller barge-in")
	if c, ok := s.cfg.Adapter.(clearer); ok {
		if err := c.SendClear(); err != nil {
			s.logger.Warn("playback clear failed", "err", err)
		}
	}
	if err := model.CancelResponse(); err != nil {
		s.logger.Warn("response cancel failed", "err", err)
	}
}

func (s *AgentSession) teardown(model ModelConn) {
	s.advance(StateClosing)
	if model != nil {
		if err := model.Close(); err != nil {
			s.logger.Debug("model leg close", "err", err)
		}
	}
	if err := s.cfg.Adapter.Close(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("caller leg close", "err", err)
	}
	s.advance(StateClosed)
	s.logger.Info("session closed")
}

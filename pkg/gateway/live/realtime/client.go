// Package realtime is the model-side leg: a WebSocket client for the
// speech endpoint's streaming session protocol.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/gateway/tools"
)

// Config carries everything needed to open and configure a model session.
type Config struct {
	APIKey       string
	URL          string // wss URL including the model query parameter
	Voice        string
	Instructions string
	Tools        []tools.Definition

	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Client is a live model session. Events arrive on Events(); senders may be
// called from any goroutine.
type Client struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeTimeout time.Duration
	writeMu      sync.Mutex

	events chan Event

	closeOnce sync.Once
	closeErr  error
}

// Dial opens the session and sends the initial session.update carrying
// audio formats, server-side turn detection, and the tool definitions.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("realtime: api key required")
	}
	if cfg.URL == "" {
		return nil, errors.New("realtime: url required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: dial failed: %w", err)
	}

	c := &Client{
		ws:           ws,
		logger:       logger,
		writeTimeout: writeTimeout,
		events:       make(chan Event, 64),
	}

	if err := c.sendSessionUpdate(cfg); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("realtime: session update: %w", err)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) sendSessionUpdate(cfg Config) error {
	update := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      cfg.Instructions,
			Voice:             cfg.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMs:   300,
				SilenceDurationMs: 500,
			},
			Tools: cfg.Tools,
		},
	}
	return c.writeJSON(update)
}

// Events delivers decoded server events. The channel closes after a
// terminal Err event or Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.events <- Event{Type: EventError, Err: err}
			}
			return
		}

		var raw serverEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			c.logger.Warn("undecodable model event", "err", err)
			continue
		}

		switch raw.Type {
		case EventAudioDelta:
			pcm, err := base64.StdEncoding.DecodeString(raw.Delta)
			if err != nil {
				c.logger.Warn("audio delta not base64", "err", err)
				continue
			}
			c.events <- Event{Type: EventAudioDelta, Audio: pcm}
		case EventToolCall:
			args := map[string]any{}
			if raw.Arguments != "" {
				if err := json.Unmarshal([]byte(raw.Arguments), &args); err != nil {
					c.logger.Warn("tool arguments not json", "call_id", raw.CallID, "err", err)
					args = map[string]any{}
				}
			}
			c.events <- Event{Type: EventToolCall, ToolCall: &ToolCall{
				CallID:    raw.CallID,
				Name:      raw.Name,
				Arguments: args,
			}}
		case EventError:
			c.events <- Event{Type: EventError, Err: fmt.Errorf("model error: %s", raw.Error)}
		default:
			c.events <- Event{Type: raw.Type}
		}
	}
}

// AppendAudio streams a chunk of caller PCM into the model's input buffer.
func (c *Client) AppendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return c.writeJSON(audioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// CommitAudio closes out the current input buffer. With server-side turn
// detection active this is only needed for explicit end-of-input.
func (c *Client) CommitAudio() error {
	return c.writeJSON(bufferCommit{Type: "input_audio_buffer.commit"})
}

// SendToolResult injects a function-call result and asks the model to
// continue the response.
func (c *Client) SendToolResult(callID string, output map[string]any) error {
	encoded, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("realtime: encode tool output: %w", err)
	}
	if err := c.writeJSON(itemCreate{
		Type: "conversation.item.create",
		Item: functionItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: string(encoded),
		},
	}); err != nil {
		return err
	}
	return c.writeJSON(responseCreate{Type: "response.create"})
}

// CancelResponse aborts the in-flight model response. Used on barge-in.
func (c *Client) CancelResponse() error {
	return c.writeJSON(responseCancel{Type: "response.cancel"})
}

func (c *Client) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

package realtime

import (
	"encoding/json"

	"github.com/voxbridge/voxbridge/pkg/gateway/tools"
)

// Event is a decoded server event, reduced to what sessions act on.
type Event struct {
	Type     string
	Audio    []byte    // response.audio.delta, decoded PCM16
	ToolCall *ToolCall // response.function_call_arguments.done
	Err      error     // transport or protocol failure; terminal
}

// ToolCall is a completed function-call request from the model.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments map[string]any
}

// Server event types sessions switch on.
const (
	EventAudioDelta     = "response.audio.delta"
	EventToolCall       = "response.function_call_arguments.done"
	EventSpeechStarted  = "input_audio_buffer.speech_started"
	EventResponseDone   = "response.done"
	EventSessionCreated = "session.created"
	EventError          = "error"
)

// serverEvent is the wire shape of inbound events; the type field
// discriminates.
type serverEvent struct {
	Type      string          `json:"type"`
	Delta     string          `json:"delta,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities        []string           `json:"modalities"`
	Instructions      string             `json:"instructions,omitempty"`
	Voice             string             `json:"voice,omitempty"`
	InputAudioFormat  string             `json:"input_audio_format"`
	OutputAudioFormat string             `json:"output_audio_format"`
	TurnDetection     turnDetection      `json:"turn_detection"`
	Tools             []tools.Definition `json:"tools,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type bufferCommit struct {
	Type string `json:"type"`
}

type responseCancel struct {
	Type string `json:"type"`
}

type itemCreate struct {
	Type string       `json:"type"`
	Item functionItem `json:"item"`
}

type functionItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type responseCreate struct {
	Type string `json:"type"`
}

package transport

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/pkg/gateway/live/audio"
)

// wsConn is the subset of *websocket.Conn the adapter needs; tests provide
// in-memory fakes.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// mediaMessage is the carrier's media-stream envelope. Every frame carries
// an event discriminator; audio rides in media.payload as base64 mulaw.
type mediaMessage struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid,omitempty"`
	Media     *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Mark *struct {
		Name string `json:"name"`
	} `json:"mark,omitempty"`
	Start *struct {
		StreamSID string `json:"streamSid"`
		CallSID   string `json:"callSid"`
	} `json:"start,omitempty"`
	Stop *struct {
		CallSID string `json:"callSid"`
	} `json:"stop,omitempty"`
}

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundMark struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// MediaStreamAdapter bridges a carrier media-stream WebSocket to the
// session frame interface. Inbound audio is mulaw at the telephony rate and
// is decoded and upsampled to the model rate; outbound audio goes the other
// way. Only stream lifecycle is logged, never audio content.
type MediaStreamAdapter struct {
	ws           wsConn
	logger       *slog.Logger
	writeTimeout time.Duration

	mu        sync.Mutex
	streamSID string
	closed    bool
}

func NewMediaStreamAdapter(ws *websocket.Conn, logger *slog.Logger, writeTimeout time.Duration) *MediaStreamAdapter {
	return newMediaStreamAdapter(ws, logger, writeTimeout)
}

func newMediaStreamAdapter(ws wsConn, logger *slog.Logger, writeTimeout time.Duration) *MediaStreamAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &MediaStreamAdapter{ws: ws, logger: logger, writeTimeout: writeTimeout}
}

func (a *MediaStreamAdapter) Kind() string { return KindTelephony }

// StreamSID reports the carrier stream id, empty until the start event
// arrives.
func (a *MediaStreamAdapter) StreamSID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streamSID
}

// Receive blocks for the next frame. Text frames carrying the JSON envelope
// become control events or decoded audio; anything else on the wire is
// treated as raw mulaw audio rather than dropped.
func (a *MediaStreamAdapter) Receive() (Frame, error) {
	for {
		msgType, data, err := a.ws.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				a.logger.Info("media stream closed", "code", closeErr.Code, "reason", closeErr.Text)
			}
			return Frame{}, err
		}

		if msgType == websocket.BinaryMessage {
			return Frame{Audio: a.decodeAudio(data)}, nil
		}

		var msg mediaMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			return Frame{Audio: a.decodeAudio(data)}, nil
		}

		switch msg.Event {
		case "media":
			if msg.Media == nil {
				continue
			}
			mulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				a.logger.Warn("media payload not base64", "err", err)
				continue
			}
			return Frame{Audio: a.decodeAudio(mulaw)}, nil
		case "start":
			sid := msg.StreamSID
			if sid == "" && msg.Start != nil {
				sid = msg.Start.StreamSID
			}
			a.mu.Lock()
			a.streamSID = sid
			a.mu.Unlock()
			a.logger.Info("media stream started", "stream_sid", sid)
			return Frame{Event: &Event{Name: "start", StreamSID: sid}}, nil
		case "stop":
			a.logger.Info("media stream stopped", "stream_sid", a.StreamSID())
			return Frame{Event: &Event{Name: "stop", StreamSID: a.StreamSID()}}, nil
		case "mark":
			name := ""
			if msg.Mark != nil {
				name = msg.Mark.Name
			}
			return Frame{Event: &Event{Name: "mark", StreamSID: a.StreamSID(), MarkName: name}}, nil
		case "connected":
			// Handshake preamble, nothing to surface.
			continue
		default:
			a.logger.Debug("unknown media stream event", "event", msg.Event)
			continue
		}
	}
}

func (a *MediaStreamAdapter) decodeAudio(mulaw []byte) []byte {
	pcm := audio.DecodeMulaw(mulaw)
	return audio.Resample(pcm, audio.TelephonyRate, audio.ModelRate)
}

// Send downsamples model-rate PCM to the telephony rate, mulaw-encodes it,
// and writes a media frame.
func (a *MediaStreamAdapter) Send(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	downsampled := audio.Resample(pcm, audio.ModelRate, audio.TelephonyRate)
	mulaw := audio.EncodeMulaw(downsampled)

	msg := outboundMedia{Event: "media", StreamSID: a.StreamSID()}
	msg.Media.Payload = base64.StdEncoding.EncodeToString(mulaw)
	return a.writeJSON(msg)
}

// SendMark writes a mark frame; the carrier echoes it back once playback
// reaches that point.
func (a *MediaStreamAdapter) SendMark(name string) error {
	msg := outboundMark{Event: "mark", StreamSID: a.StreamSID()}
	msg.Mark.Name = name
	return a.writeJSON(msg)
}

// SendClear tells the carrier to flush any buffered outbound audio. Used on
// barge-in so the caller stops hearing a canceled reply.
func (a *MediaStreamAdapter) SendClear() error {
	return a.writeJSON(outboundClear{Event: "clear", StreamSID: a.StreamSID()})
}

func (a *MediaStreamAdapter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode media frame: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return websocket.ErrCloseSent
	}
	if err := a.ws.SetWriteDeadline(time.Now().Add(a.writeTimeout)); err != nil {
		return err
	}
	return a.ws.WriteMessage(websocket.TextMessage, data)
}

func (a *MediaStreamAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	deadline := time.Now().Add(a.writeTimeout)
	_ = a.ws.SetWriteDeadline(deadline)
	_ = a.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return a.ws.Close()
}

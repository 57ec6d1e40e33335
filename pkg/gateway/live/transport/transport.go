// Package transport adapts caller-side connections to a single frame
// interface so sessions never deal with carrier wire formats directly.
package transport

// Kind identifies which leg delivered the caller's audio.
const (
	KindWebRTC    = "webrtc"
	KindTelephony = "telephony-stream"
)

// Event is a non-audio control notification from the caller leg.
type Event struct {
	Name      string
	StreamSID string
	MarkName  string
}

// Frame is a single inbound unit: either decoded caller audio (PCM16 LE at
// the model rate) or a control event, never both.
type Frame struct {
	Audio []byte
	Event *Event
}

// Adapter is the session's view of a caller leg. Send accepts PCM16 LE at
// the model rate and owns any codec translation back to the wire.
type Adapter interface {
	Kind() string
	Send(pcm []byte) error
	Receive() (Frame, error)
	Close() error
}

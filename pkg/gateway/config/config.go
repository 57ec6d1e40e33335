package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Route paths served by the gateway. The media path is also what the TwiML
// webhook points the carrier at, so handlers and config must agree on it.
const (
	SDPRelayPath     = "/realtime/sdp"
	VoiceWebhookPath = "/twilio/voice"
	MediaStreamPath  = "/twilio/media"
)

type Config struct {
	Addr string

	// PublicURL is the externally reachable base URL of this bridge
	// (scheme://host, no trailing slash). The voice webhook derives the
	// media-stream callback URL from it.
	PublicURL string

	// Speech-model endpoint.
	OpenAIAPIKey     string
	RealtimeModel    string
	RealtimeVoice    string
	RealtimeWSURL    string // wss base for the streaming session
	SignalingBaseURL string // https base for SDP offer/answer relay

	// Telephony webhook signature validation. Enforced whenever an auth
	// token is configured; opting out requires an explicit override.
	TwilioAuthToken         string
	ValidateTwilioSignature bool

	WorkspaceDir string
	ScriptsDir   string

	// Optional call-record persistence. Empty disables it.
	DatabaseURL string

	MaxSDPBytes  int64
	MaxFormBytes int64

	// Audio frames buffered while the model leg is still connecting.
	ConnectBufferFrames int

	// Load limits. Zero disables the respective limit.
	RelayRPS           float64
	RelayBurst         int
	MaxConcurrentCalls int

	ModelDialTimeout    time.Duration
	ToolTimeout         time.Duration
	WSWriteTimeout      time.Duration
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults (SDP relay).
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("VOXBRIDGE_ADDR", ":8080"),
		PublicURL:                     strings.TrimRight(envOr("VOXBRIDGE_PUBLIC_URL", "http://localhost:8080"), "/"),
		OpenAIAPIKey:                  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		RealtimeModel:                 envOr("VOXBRIDGE_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		RealtimeVoice:                 envOr("VOXBRIDGE_VOICE", "verse"),
		RealtimeWSURL:                 envOr("VOXBRIDGE_REALTIME_WS_URL", "wss://api.openai.com/v1/realtime"),
		SignalingBaseURL:              envOr("VOXBRIDGE_REALTIME_HTTP_URL", "https://api.openai.com/v1/realtime"),
		TwilioAuthToken:               strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		ValidateTwilioSignature:       envBoolOr("VOXBRIDGE_TWILIO_VALIDATE_SIGNATURE", true),
		WorkspaceDir:                  envOr("VOXBRIDGE_WORKSPACE_DIR", "./workspace"),
		ScriptsDir:                    envOr("VOXBRIDGE_SCRIPTS_DIR", "./scripts"),
		DatabaseURL:                   strings.TrimSpace(os.Getenv("VOXBRIDGE_DATABASE_URL")),
		MaxSDPBytes:                   envInt64Or("VOXBRIDGE_MAX_SDP_BYTES", 64<<10),
		MaxFormBytes:                  envInt64Or("VOXBRIDGE_MAX_FORM_BYTES", 64<<10),
		ConnectBufferFrames:           envIntOr("VOXBRIDGE_CONNECT_BUFFER_FRAMES", 50),
		RelayRPS:                      envFloatOr("VOXBRIDGE_RELAY_RPS", 0),
		RelayBurst:                    envIntOr("VOXBRIDGE_RELAY_BURST", 0),
		MaxConcurrentCalls:            envIntOr("VOXBRIDGE_MAX_CONCURRENT_CALLS", 0),
		ModelDialTimeout:              envDurationOr("VOXBRIDGE_MODEL_DIAL_TIMEOUT", 10*time.Second),
		ToolTimeout:                   envDurationOr("VOXBRIDGE_TOOL_TIMEOUT", 15*time.Second),
		WSWriteTimeout:                envDurationOr("VOXBRIDGE_WS_WRITE_TIMEOUT", 5*time.Second),
		ReadHeaderTimeout:             envDurationOr("VOXBRIDGE_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("VOXBRIDGE_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:           envDurationOr("VOXBRIDGE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("VOXBRIDGE_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("VOXBRIDGE_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("VOXBRIDGE_ADDR must not be empty")
	}
	u, err := url.Parse(cfg.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, fmt.Errorf("VOXBRIDGE_PUBLIC_URL must be an http(s) URL with a host")
	}
	if strings.TrimSpace(cfg.RealtimeModel) == "" {
		return Config{}, fmt.Errorf("VOXBRIDGE_REALTIME_MODEL must not be empty")
	}
	if !strings.HasPrefix(cfg.RealtimeWSURL, "ws://") && !strings.HasPrefix(cfg.RealtimeWSURL, "wss://") {
		return Config{}, fmt.Errorf("VOXBRIDGE_REALTIME_WS_URL must be a ws(s) URL")
	}
	if !strings.HasPrefix(cfg.SignalingBaseURL, "http://") && !strings.HasPrefix(cfg.SignalingBaseURL, "https://") {
		return Config{}, fmt.Errorf("VOXBRIDGE_REALTIME_HTTP_URL must be an http(s) URL")
	}
	if strings.TrimSpace(cfg.WorkspaceDir) == "" {
		return Config{}, fmt.Errorf("VOXBRIDGE_WORKSPACE_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.ScriptsDir) == "" {
		return Config{}, fmt.Errorf("VOXBRIDGE_SCRIPTS_DIR must not be empty")
	}
	if cfg.MaxSDPBytes <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_MAX_SDP_BYTES must be > 0")
	}
	if cfg.MaxFormBytes <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_MAX_FORM_BYTES must be > 0")
	}
	if cfg.ConnectBufferFrames <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_CONNECT_BUFFER_FRAMES must be > 0")
	}
	if cfg.RelayRPS < 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_RELAY_RPS must be >= 0")
	}
	if cfg.RelayBurst < 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_RELAY_BURST must be >= 0")
	}
	if cfg.MaxConcurrentCalls < 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_MAX_CONCURRENT_CALLS must be >= 0")
	}
	if cfg.ModelDialTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_MODEL_DIAL_TIMEOUT must be > 0")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_TOOL_TIMEOUT must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXBRIDGE_RESPONSE_HEADER_TIMEOUT must be > 0")
	}

	return cfg, nil
}

// SignatureValidationEnabled reports whether telephony webhook signatures
// are checked. It requires both a configured auth token and the toggle,
// which defaults to on.
func (c Config) SignatureValidationEnabled() bool {
	return c.ValidateTwilioSignature && c.TwilioAuthToken != ""
}

// VoiceCallbackURL is the exact public URL the carrier posts the voice
// webhook to. Signatures are computed over this URL.
func (c Config) VoiceCallbackURL() string {
	return c.PublicURL + VoiceWebhookPath
}

// MediaStreamURL is the ws(s) URL the TwiML response points the carrier's
// media stream at.
func (c Config) MediaStreamURL() string {
	base := c.PublicURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + MediaStreamPath
}

// SignalingURL is the model endpoint's SDP signaling URL for the configured
// model.
func (c Config) SignalingURL() string {
	return c.SignalingBaseURL + "?model=" + url.QueryEscape(c.RealtimeModel)
}

// RealtimeSessionURL is the model endpoint's streaming WebSocket URL for the
// configured model.
func (c Config) RealtimeSessionURL() string {
	return c.RealtimeWSURL + "?model=" + url.QueryEscape(c.RealtimeModel)
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloatOr(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

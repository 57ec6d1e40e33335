// Package metrics holds the Prometheus instrumentation for the bridge.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	AudioBytesTotal *prometheus.CounterVec
	ToolCallsTotal  *prometheus.CounterVec
	SDPRelaysTotal  *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voxbridge"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live bridge sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of bridge sessions",
		},
		[]string{"transport", "status"},
	)

	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Bridge session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"transport"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total audio bytes relayed",
		},
		[]string{"direction"},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations dispatched for the model",
		},
		[]string{"tool", "status"},
	)

	sdpRelaysTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sdp_relays_total",
			Help:      "Total SDP offer/answer relays",
		},
		[]string{"status"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		audioBytesTotal,
		toolCallsTotal,
		sdpRelaysTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:        registry,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SessionDuration: sessionDuration,
		AudioBytesTotal: audioBytesTotal,
		ToolCallsTotal:  toolCallsTotal,
		SDPRelaysTotal:  sdpRelaysTotal,
		ErrorsTotal:     errorsTotal,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) RecordSessionEnd(transport, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(transport, status).Inc()
	m.SessionDuration.WithLabelValues(transport).Observe(duration.Seconds())
}

func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

func (m *Metrics) RecordToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) RecordSDPRelay(statusCode int) {
	if m == nil {
		return
	}
	status := "ok"
	if statusCode >= 400 {
		status = "error"
	}
	m.SDPRelaysTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordError(component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component).Inc()
}

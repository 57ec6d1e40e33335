// Package server assembles the gateway: routes, middleware chain, and the
// shared dependencies every handler draws on.
package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/voxbridge/voxbridge/pkg/gateway/config"
	"github.com/voxbridge/voxbridge/pkg/gateway/handlers"
	"github.com/voxbridge/voxbridge/pkg/gateway/live/sessions"
	"github.com/voxbridge/voxbridge/pkg/gateway/metrics"
	"github.com/voxbridge/voxbridge/pkg/gateway/mw"
	"github.com/voxbridge/voxbridge/pkg/gateway/ratelimit"
	"github.com/voxbridge/voxbridge/pkg/gateway/store"
	"github.com/voxbridge/voxbridge/pkg/gateway/tools"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	sessions     *sessions.Manager
	registry     *tools.Registry
	instructions string
	metrics      *metrics.Metrics
	recorder     store.Recorder
	limiter      *ratelimit.Limiter
	httpClient   *http.Client
}

// Options carries the assembled domain dependencies. Zero-value fields fall
// back to safe defaults.
type Options struct {
	Registry     *tools.Registry
	Instructions string
	Metrics      *metrics.Metrics
	Recorder     store.Recorder
}

func New(cfg config.Config, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = tools.NewRegistry()
	}
	if opts.Recorder == nil {
		opts.Recorder = store.NopRecorder{}
	}

	var limiter *ratelimit.Limiter
	limitCfg := ratelimit.Config{
		RelayRPS:           cfg.RelayRPS,
		RelayBurst:         cfg.RelayBurst,
		MaxConcurrentCalls: cfg.MaxConcurrentCalls,
	}
	if limitCfg.Enabled() {
		limiter = ratelimit.New(limitCfg)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.UpstreamConnectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		mux:          http.NewServeMux(),
		sessions:     sessions.NewManager(),
		registry:     opts.Registry,
		instructions: opts.Instructions,
		metrics:      opts.Metrics,
		recorder:     opts.Recorder,
		limiter:      limiter,
		httpClient:   httpClient,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Sessions: s.sessions})
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	s.mux.Handle(config.SDPRelayPath, handlers.SDPHandler{
		Config:  s.cfg,
		Client:  s.httpClient,
		Logger:  s.logger,
		Metrics: s.metrics,
		Limiter: s.limiter,
	})
	s.mux.Handle(config.VoiceWebhookPath, handlers.VoiceHandler{
		Config: s.cfg,
		Logger: s.logger,
	})
	s.mux.Handle(config.MediaStreamPath, handlers.MediaHandler{
		Config:       s.cfg,
		Sessions:     s.sessions,
		Registry:     s.registry,
		Instructions: s.instructions,
		Logger:       s.logger,
		Metrics:      s.metrics,
		Recorder:     s.recorder,
		Limiter:      s.limiter,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Sessions exposes the manager for shutdown draining.
func (s *Server) Sessions() *sessions.Manager {
	return s.sessions
}

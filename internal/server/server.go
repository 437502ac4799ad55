// Package server wires the overlay's HTTP surface: health and metrics, the
// state inspection API, the operator alert controls, and the websocket route
// the browser sources attach to.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"streamglass/internal/api"
	"streamglass/internal/hub"
	"streamglass/internal/observability/logging"
	"streamglass/internal/observability/metrics"
	"streamglass/internal/serverutil"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr     string
	TLS      TLSConfig
	Security SecurityConfig
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	metrics     *metrics.Recorder
	tlsCertFile string
	tlsKeyFile  string
}

func New(handler *api.Handler, overlayHub *hub.Hub, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("api handler is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/state", handler.State)
	mux.HandleFunc("/api/alerts/test", handler.TestAlert)
	mux.HandleFunc("/api/alerts/clear", handler.ClearAlerts)
	if overlayHub != nil {
		mux.HandleFunc("/ws/overlay", overlayHub.HandleOverlay)
	}

	// The websocket route is excluded from the wrapping middleware: the
	// response recorders would hide the Hijacker the upgrade needs, and a
	// long-lived socket has no meaningful request duration.
	wrapped := http.Handler(mux)
	wrapped = metrics.HTTPMiddleware(recorder, wrapped)
	wrapped = logging.RequestLogger(logging.RequestLoggerConfig{Logger: cfg.Logger})(wrapped)
	wrapped = securityHeadersMiddleware(cfg.Security, wrapped)
	wrapped = requestIDMiddleware(cfg.Logger, wrapped)

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			mux.ServeHTTP(w, r)
			return
		}
		wrapped.ServeHTTP(w, r)
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		metrics:     recorder,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	return serverutil.Run(ctx, serverutil.Config{
		Server: s.httpServer,
		TLS:    serverutil.TLSConfig{CertFile: s.tlsCertFile, KeyFile: s.tlsKeyFile},
	})
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}

	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

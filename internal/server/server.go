// Package server implements the HTTP server that exposes the document QA
// pipeline via a REST/SSE API: document upload and management, whole-answer
// and streaming question answering, query history, and the usual health,
// readiness, and metrics endpoints. The server is started by the
// `docqa serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mahmoudramadan155/qa-queue-service/internal/ingest"
	"github.com/mahmoudramadan155/qa-queue-service/internal/logging"
	"github.com/mahmoudramadan155/qa-queue-service/internal/session"
	"github.com/mahmoudramadan155/qa-queue-service/internal/store"
)

// defaultMaxUploadBytes caps document uploads at 10 MiB.
const defaultMaxUploadBytes = 10 << 20

// New constructs a Server from the wired pipeline components and config.
func New(runner *session.Runner, pipeline *ingest.Pipeline, st store.Store, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("server: runner must not be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("server: pipeline must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("server: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		runner:   runner,
		pipeline: pipeline,
		store:    st,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not set — authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", s.protected(rl, http.HandlerFunc(s.handleAsk)))
	mux.Handle("POST /api/ask/stream", s.protected(rl, http.HandlerFunc(s.handleAskStream)))
	mux.Handle("POST /api/documents", s.protected(rl, http.HandlerFunc(s.handleUpload)))
	mux.Handle("GET /api/documents", s.protected(rl, http.HandlerFunc(s.handleListDocuments)))
	mux.Handle("DELETE /api/documents/{id}", s.protected(rl, http.HandlerFunc(s.handleDeleteDocument)))
	mux.Handle("DELETE /api/owner", s.protected(rl, http.HandlerFunc(s.handleWipeOwner)))
	mux.Handle("GET /api/history", s.protected(rl, http.HandlerFunc(s.handleHistory)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// protected wraps a handler with the middleware every owner-scoped API
// route carries: rate limiting, bearer auth, and owner resolution.
func (s *Server) protected(rl *rateLimiter, next http.Handler) http.Handler {
	return rl.middleware(authMiddleware(s.cfg.APIKey, requireOwner(next)))
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("docqa server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

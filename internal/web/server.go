package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"daylife/internal/config"
	appLog "daylife/internal/log"
	"daylife/internal/metrics"
	"daylife/internal/planner"
)

const (
	maxJSONBody   = 1 << 20
	maxImportBody = 6 << 20

	shutdownTimeout = 10 * time.Second
)

// Server provides the HTTP API over a planner.Service.
type Server struct {
	cfg     *config.Config
	planner *planner.Service
	metrics *metrics.Metrics
	limiter *rateLimiter
	router  chi.Router
}

// NewServer constructs a new Server. gatherer backs GET /metrics; if nil the
// default Prometheus registry is used.
func NewServer(cfg *config.Config, svc *planner.Service, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:     cfg,
		planner: svc,
		metrics: m,
		limiter: newRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		router:  chi.NewRouter(),
	}
	s.registerRoutes(gatherer)
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	r := s.router
	r.Use(middleware.RequestID)
	// Forwarded headers are client-controlled unless a proxy overwrites
	// them; without one the limiter keys off the socket address.
	if s.cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(s.basicAuthMiddleware)
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Post("/generate-schedule", s.handleGenerate)
		r.Post("/import-calendar", s.handleImport)
	})
	r.Post("/export-calendar", s.handleExport)
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

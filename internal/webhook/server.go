package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mattjoyce/hookgate/internal/auth"
	"github.com/mattjoyce/hookgate/internal/event"
	"github.com/mattjoyce/hookgate/internal/events"
	"github.com/mattjoyce/hookgate/internal/metrics"
	"github.com/mattjoyce/hookgate/internal/worker"
)

// Server represents the webhook HTTP server.
type Server struct {
	config    Config
	registry  *event.Registry
	logger    *slog.Logger
	gate      *Gate
	endpoint  *Endpoint
	pool      *worker.Pool
	metrics   *metrics.Metrics
	hub       *events.Hub
	router    *chi.Mux
	server    *http.Server
	startedAt time.Time

	// streams is cancelled on Shutdown so /events clients do not hold it open.
	streams     context.Context
	stopStreams context.CancelFunc
}

// NewServer wires the gate, dispatcher and worker pool for reg.
func NewServer(cfg Config, reg *event.Registry, logger *slog.Logger) (*Server, error) {
	cfg = cfg.withDefaults()
	if reg == nil {
		return nil, fmt.Errorf("event registry is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewGoCollector())
		m = metrics.NewMetrics(promRegistry)
	}

	var hub *events.Hub
	if cfg.EnableEvents {
		hub = events.NewHub(cfg.EventBuffer)
	}

	gate, err := NewGate(cfg.Secret, GateOptions{
		MaxBodySize: cfg.MaxBodySize,
		Logger:      logger.With("component", "gate"),
		Metrics:     m,
		Hub:         hub,
	})
	if err != nil {
		return nil, err
	}

	pool := worker.New(cfg.Workers, logger.With("component", "worker"), m, hub, worker.WithMaxPending(cfg.MaxPending))
	dispatcher := event.NewDispatcher(reg, pool, logger.With("component", "dispatch"), m)

	s := &Server{
		config:    cfg,
		registry:  reg,
		logger:    logger,
		gate:      gate,
		endpoint:  NewEndpoint(dispatcher, logger.With("component", "endpoint"), hub),
		pool:      pool,
		metrics:   m,
		hub:       hub,
		startedAt: time.Now(),
	}
	s.streams, s.stopStreams = context.WithCancel(context.Background())
	s.router = s.setupRoutes()
	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is cancelled.
// On cancellation it stops accepting connections, then waits for running
// handlers up to the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("webhook server error: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener. It takes ownership of ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting",
		"listen", ln.Addr().String(),
		"path", s.config.Path,
		"events", s.registry.Types(),
		"workers", s.config.Workers,
	)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		if err := s.Shutdown(); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Shutdown ends open event streams, stops the listener, if any, and drains
// the worker pool.
func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.stopStreams()
	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
	}
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook handlers did not finish: %w", err)
	}
	return nil
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.With(s.countRequests, s.gate.Middleware).Post(s.config.Path, s.endpoint.ServeHTTP)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(s.config.OpsToken))
		if s.metrics != nil {
			r.Get("/metrics", s.metrics.Handler().ServeHTTP)
		}
		if s.hub != nil {
			r.Get("/events", s.handleEvents)
		}
	})

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.metrics.RecordRequest(ww.Status())
	})
}

type healthResponse struct {
	Status        string   `json:"status"`
	Service       string   `json:"service"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Events        []string `json:"events"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	types := s.registry.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{
		Status:        "ok",
		Service:       s.config.Name,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Events:        names,
	})
}

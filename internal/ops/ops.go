// Package ops serves the operational HTTP surface: liveness and
// readiness probes, Prometheus metrics and a small read-only JSON API
// over the alert store.
package ops

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/noisegate/internal/models"
	"github.com/good-yellow-bee/noisegate/internal/notify"
	"github.com/good-yellow-bee/noisegate/internal/storage"
	"github.com/good-yellow-bee/noisegate/internal/worker"
)

// Store is the slice of the alert store the ops endpoints read.
type Store interface {
	Stats(ctx context.Context, since time.Time) (*storage.Stats, error)
	FetchRecentAlerts(ctx context.Context, since time.Time, includeFiltered bool, minSeverity models.Severity) ([]*models.AlertRecord, error)
}

// StatusSource reports the realtime worker's state. *worker.Worker
// satisfies it.
type StatusSource interface {
	Status() worker.Status
}

// RateLimitSource reports notification rate limiter counters.
// *notify.Dispatcher satisfies it.
type RateLimitSource interface {
	RateLimitStats() notify.RateLimitStats
}

// ArchiveSource reports decision archive buffer counters.
// *storage.DecisionBuffer satisfies it.
type ArchiveSource interface {
	BufferStats() storage.ArchiveBufferStats
}

// Checker verifies one dependency for the readiness probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Config contains ops server configuration. Store is required; the
// status sources are optional and their sections are omitted from
// /api/v1/status when absent.
type Config struct {
	Address      string
	QueryTimeout time.Duration

	Store     Store
	Worker    StatusSource
	RateLimit RateLimitSource
	Archive   ArchiveSource
	Logger    zerolog.Logger
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8090"
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

// Server is the ops HTTP server. Every endpoint is read-only.
type Server struct {
	config   Config
	store    Store
	worker   StatusSource
	limits   RateLimitSource
	archive  ArchiveSource
	checkers []Checker
	log      zerolog.Logger
	server   *http.Server
}

// New creates an ops server. Checkers for the readiness probe are
// added afterwards with RegisterChecker.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	cfg.SetDefaults()

	s := &Server{
		config:  cfg,
		store:   cfg.Store,
		worker:  cfg.Worker,
		limits:  cfg.RateLimit,
		archive: cfg.Archive,
		log:     cfg.Logger.With().Str("component", "ops").Logger(),
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// RegisterChecker adds a dependency checker consulted by /readyz.
// Register all checkers before Run.
func (s *Server) RegisterChecker(c Checker) {
	s.checkers = append(s.checkers, c)
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestLogger(s.log))
	r.Use(recoverer(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/alerts/recent", s.handleRecentAlerts)
		r.Get("/status", s.handleStatus)
	})

	return r
}

// Run starts the HTTP server and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.log.Info().Str("address", s.config.Address).Msg("ops server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down ops server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("ops server: %w", err)
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture status and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()[:8]
			w.Header().Set("X-Request-ID", requestID)

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			evt := log.Debug()
			if wrapped.status >= 500 {
				evt = log.Error()
			} else if wrapped.status >= 400 {
				evt = log.Warn()
			}
			evt.Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.status).
				Int("size", wrapped.size).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func recoverer(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("panic", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Bytes("stack", debug.Stack()).
						Msg("panic recovered")
					jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

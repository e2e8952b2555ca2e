// Package webhook exposes the inbound lifecycle endpoint. Deliveries are
// acknowledged immediately and reconciled in the background.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/mooring-labs/searchlink/internal/logger"
	"github.com/mooring-labs/searchlink/internal/reconcile"
	"github.com/mooring-labs/searchlink/internal/versions"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 15 * time.Second
	serverIdleTimeout  = 60 * time.Second

	// maxPayloadBytes caps how much of a delivery body is read. Lifecycle
	// envelopes are small; anything larger is not a signal.
	maxPayloadBytes = 1 << 20
)

// signalProcessor handles one authenticated lifecycle delivery.
type signalProcessor interface {
	ProcessPayload(ctx context.Context, payload []byte) ([]reconcile.SignalResult, error)
}

// Server is the lifecycle webhook listener. Each instance owns its listener
// and its background work; independent instances do not share state.
type Server struct {
	httpServer *http.Server
	processor  signalProcessor

	// baseCtx outlives individual requests so reconciliation keeps running
	// after the delivery has been acknowledged.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	inflight   *errgroup.Group
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	middlewares   []func(http.Handler) http.Handler
	lifecyclePath string
}

// WithMiddlewares adds middleware to the router, outermost first.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithLifecyclePath overrides the path of the lifecycle endpoint.
func WithLifecyclePath(path string) Option {
	return func(cfg *serverConfig) {
		if path != "" {
			cfg.lifecyclePath = path
		}
	}
}

// NewServer builds the webhook listener on the given address.
func NewServer(address string, processor signalProcessor, opts ...Option) *Server {
	cfg := &serverConfig{
		lifecyclePath: "/webhook/lifecycle",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	// No limit on the group: scheduling must never block the handler, the
	// acknowledgment has to go out immediately.
	s := &Server{
		processor:  processor,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		inflight:   &errgroup.Group{},
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}
	r.Post(cfg.lifecyclePath, s.handleLifecycle)
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)

	s.httpServer = &http.Server{
		Addr:         address,
		Handler:      r,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	logger.Infof("Lifecycle webhook listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and drains in-flight reconciliations. When the
// context expires before the drain completes, remaining reconciliations are
// canceled.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancelBase()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		_ = s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warnf("Shutdown deadline reached, canceling in-flight reconciliations")
		s.cancelBase()
		return ctx.Err()
	}
}

// handleLifecycle acknowledges every delivery with 202 before any
// reconciliation work happens. The notifier never waits on, or learns the
// outcome of, downstream processing.
func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	w.WriteHeader(http.StatusAccepted)
	if err != nil {
		logger.Warnf("Failed to read lifecycle delivery body: %v", err)
		return
	}

	if s.baseCtx.Err() != nil {
		logger.Warnf("Server shutting down, dropping lifecycle delivery")
		return
	}
	s.inflight.Go(func() error {
		s.process(payload)
		return nil
	})
}

func (s *Server) process(payload []byte) {
	results, err := s.processor.ProcessPayload(s.baseCtx, payload)
	if err != nil {
		if !errors.Is(err, reconcile.ErrSignalDiscarded) {
			logger.Errorf("Lifecycle delivery processing failed: %v", err)
		}
		return
	}
	for _, result := range results {
		if result.Err != nil {
			logger.Errorf("Reconciliation of connection %s failed: %v", result.ResourceID, result.Err)
		}
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(versions.GetVersionInfo()); err != nil {
		logger.Errorf("Failed to encode version response: %v", err)
	}
}

// LoggingMiddleware logs each request once the response is written.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debugf("HTTP %s %s %d %s %s",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			middleware.GetReqID(r.Context()),
		)
	})
}

package server

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/decisionlog"
	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/policy/signature"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/security/auth"
	govtls "nanogov/governor/pkg/security/tls"
	"nanogov/governor/pkg/stream"
	"nanogov/governor/pkg/telemetry/health"
	"nanogov/governor/pkg/telemetry/logging"
	"nanogov/governor/pkg/telemetry/metrics"
	"nanogov/governor/pkg/telemetry/tracing"
)

// Dependencies are the components the API serves. Engine, Store, Log and
// Verifier are required; the rest are optional and their routes answer 503
// or are not mounted when absent.
type Dependencies struct {
	Engine   *enforce.Engine
	Store    *store.Store
	Log      *decisionlog.Log
	Verifier signature.Verifier

	Hub      *stream.Hub
	Evidence evidence.Storage
	Metrics  *metrics.Collector
	Health   *health.Checker
	Tracer   *tracing.Tracer
	Logger   *slog.Logger

	// TLS, when set, wraps the listener. Peer certificate identities are
	// attached to request logs as the node ID.
	TLS *cryptotls.Config
	// Keys, when set, are required on every /v1 route.
	Keys *auth.KeySet
}

// Server is the governor HTTP API.
type Server struct {
	config       *config.Config
	deps         Dependencies
	logger       *slog.Logger
	limiter      *admissionLimiter
	handler      http.Handler
	httpServer   *http.Server
	shutdownChan chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates the API server. Routes are built once; Handler returns
// the same router on every call.
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: nil configuration")
	}
	if deps.Engine == nil || deps.Store == nil || deps.Log == nil {
		return nil, errors.New("server: engine, store and log are required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("server: nil signature verifier")
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Noop()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:       cfg,
		deps:         deps,
		logger:       logger.With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
	var onReject func(string)
	if deps.Metrics != nil {
		onReject = deps.Metrics.RecordRateLimited
	}
	s.limiter = newAdmissionLimiter(cfg.Server.AdmissionRate, cfg.Server.AdmissionBurst, onReject)
	s.handler = s.setupRoutes()
	return s, nil
}

// Start serves on the configured address and blocks until ctx is done,
// Stop is called or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	if s.deps.TLS != nil {
		ln = cryptotls.NewListener(ln, s.deps.TLS)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener. The listener is used as given;
// Start adds TLS.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Stop asks a running Start to return.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdownChan) })
}

// Shutdown gracefully stops the server within the configured timeout.
// Open websocket streams are closed through the request context.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		running := s.isRunning
		s.mu.Unlock()
		if !running || srv == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			_ = srv.Close()
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		s.logger.Info("API server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes builds the router. Middleware runs outermost first:
// recovery, request ID, tracing, peer identity, access log, then API key
// on /v1.
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware(s.logger))
	r.Use(requestIDMiddleware)
	r.Use(tracing.HTTPMiddleware(s.deps.Tracer))
	if s.deps.TLS != nil {
		r.Use(peerMiddleware(s.config.Server.TLS.PeerIdentity))
	}
	r.Use(loggingMiddleware(s.logger))

	if s.deps.Health != nil {
		s.deps.Health.Mount(r, &s.config.Telemetry.Health)
	}
	if s.deps.Metrics != nil && s.deps.Metrics.Enabled() {
		r.Method(http.MethodGet, s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	limit := bodyLimit(s.config.Server.MaxBodyBytes)
	r.Route("/v1", func(r chi.Router) {
		if s.deps.Keys != nil {
			r.Use(auth.Middleware(s.deps.Keys, s.config.Server.Auth.Header, rejectUnauthenticated, s.logger))
		}
		r.With(limit).Post("/enforce", s.handleEnforce)

		r.Get("/decisions", s.handleDecisions)
		r.Get("/decisions/stream", s.handleStream)

		r.Get("/policies", s.handleListPolicies)
		r.Get("/policies/{id}", s.handleGetPolicy)
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.With(s.limiter.middleware("admit")).Post("/policies", s.handleApply)
			r.With(s.limiter.middleware("supersede")).Put("/policies/{id}", s.handleSupersede)
			r.With(s.limiter.middleware("remove")).Delete("/policies/{id}", s.handleRemove)
		})

		r.Get("/evidence", s.handleEvidence)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no route for "+r.URL.Path, "")
	})
	return r
}

// peerMiddleware attaches the identity of a mesh peer that presented a
// client certificate.
func peerMiddleware(source string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := govtls.PeerIdentity(r, source); id != "" {
				r = r.WithContext(logging.WithNodeID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectUnauthenticated(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="governor"`)
	writeError(w, http.StatusUnauthorized, codeUnauthorized, msg, "")
}

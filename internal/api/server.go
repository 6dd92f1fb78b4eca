// Package api exposes BenchLink's local HTTP interface: instrument
// discovery, connection management, command dispatch, operation history,
// and the audit trail. Supervisory tooling and operator dashboards are the
// intended clients.
//
// Lifecycle matches the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openbench/benchlink-core/internal/audit"
	"github.com/openbench/benchlink-core/internal/infrastructure/config"
	"github.com/openbench/benchlink-core/internal/infrastructure/logging"
	"github.com/openbench/benchlink-core/internal/instrument"
)

// In-flight requests get this long to finish during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds everything the API server needs. Config, Logger, and at least
// one Manager are required.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Managers []*instrument.Manager
	History  *instrument.History // optional; operation endpoints 404 without it
	Audit    audit.Repository    // optional; audit trail disabled when nil
	Version  string
}

// Server owns the HTTP listener, routes, and the background audit writer.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	managers map[instrument.Kind]*instrument.Manager
	history  *instrument.History
	version  string
	server   *http.Server

	auditRepo   audit.Repository
	auditCh     chan *audit.Entry
	auditCancel context.CancelFunc
}

// New validates deps and builds a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(deps.Managers) == 0 {
		return nil, fmt.Errorf("at least one instrument manager is required")
	}

	managers := make(map[instrument.Kind]*instrument.Manager, len(deps.Managers))
	for _, m := range deps.Managers {
		managers[m.Kind()] = m
	}

	srv := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		managers: managers,
		history:  deps.History,
		version:  deps.Version,
	}
	if deps.Audit != nil {
		srv.auditRepo = deps.Audit
		srv.auditCh = make(chan *audit.Entry, auditChanSize)
	}
	return srv, nil
}

// Start launches the listener and, when auditing is configured, the audit
// writer goroutine. The listener runs until Close; a bind failure is
// logged asynchronously rather than returned here.
func (s *Server) Start(_ context.Context) error {
	if s.auditRepo != nil {
		auditCtx, cancel := context.WithCancel(context.Background())
		s.auditCancel = cancel
		go s.drainAuditLog(auditCtx)
	}

	readTimeout := time.Duration(s.cfg.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close stops the audit writer, then drains in-flight requests up to the
// graceful timeout before closing remaining connections.
func (s *Server) Close() error {
	if s.auditCancel != nil {
		s.auditCancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.Use(limitRequestBody)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Instrument and device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/discover", s.handleDiscover)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/status", s.handleDeviceStatus)
				r.Post("/connect", s.handleConnect)
				r.Post("/disconnect", s.handleDisconnect)
			})
		})

		// Command dispatch
		r.Post("/command", s.handleCommand)

		// Operation history
		r.Route("/operations", func(r chi.Router) {
			r.Get("/", s.handleListOperations)
			r.Get("/{id}", s.handleGetOperation)
		})

		// Audit trail
		r.Get("/audit", s.handleListAuditLogs)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	instruments := make(map[string]any, len(s.managers))
	for kind, m := range s.managers {
		conn := m.ConnectionState()
		instruments[string(kind)] = map[string]any{
			"connected":      conn.Connected,
			"device_id":      conn.ConnectedDeviceID,
			"backoff_active": conn.BackoffActive,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"instruments": instruments,
	})
}

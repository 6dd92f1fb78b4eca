package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openbench/benchlink-core/internal/instrument"
)

// handleListOperations returns recent operations, newest first.
// The optional ?limit query parameter caps the result count.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "operation history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ops, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing operations failed", "error", err)
		writeInternalError(w, "failed to list operations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"operations": ops,
		"count":      len(ops),
	})
}

// handleGetOperation returns one operation by id. A still-running
// operation is served from the owning manager before history is consulted.
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, m := range s.managers {
		if op, ok := m.CurrentOperation(); ok && op.ID == id {
			writeJSON(w, http.StatusOK, op)
			return
		}
	}

	if s.history == nil {
		writeNotFound(w, "operation not found: "+id)
		return
	}

	op, err := s.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, instrument.ErrOperationNotFound) {
			writeNotFound(w, "operation not found: "+id)
			return
		}
		s.logger.Error("fetching operation failed", "operation_id", id, "error", err)
		writeInternalError(w, "failed to fetch operation")
		return
	}

	writeJSON(w, http.StatusOK, op)
}

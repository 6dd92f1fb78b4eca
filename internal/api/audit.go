package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/openbench/benchlink-core/internal/audit"
	"github.com/openbench/benchlink-core/internal/instrument"
)

// auditChanSize bounds the queue of pending audit writes. When the queue is
// full new entries are dropped rather than stalling request handlers.
const auditChanSize = 256

// auditLog queues an audit entry for the background writer. Safe to call
// when no audit repository is configured; it just does nothing.
func (s *Server) auditLog(action string, kind instrument.Kind, deviceID string, details map[string]any) {
	if s.auditRepo == nil || s.auditCh == nil {
		return
	}

	entry := &audit.Entry{
		Action:   action,
		Kind:     string(kind),
		DeviceID: deviceID,
		Source:   "http",
		Details:  details,
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit channel full, dropping entry",
			"action", action,
			"kind", kind,
		)
	}
}

// drainAuditLog is the single writer goroutine behind auditCh. Writes are
// serial, which suits SQLite. On cancellation it flushes whatever is still
// queued before returning.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAuditEntry(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAuditEntry(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAuditEntry(entry *audit.Entry) {
	// Not the request context; the originating request is long gone.
	if err := s.auditRepo.Create(context.Background(), entry); err != nil {
		s.logger.Error("audit write failed",
			"action", entry.Action,
			"kind", entry.Kind,
			"error", err,
		)
	}
}

// handleListAuditLogs returns paginated audit entries with optional filters.
//
// Query parameters:
//   - action: filter by action type (command, connect, disconnect, discover)
//   - kind: filter by instrument kind (reader, shaker, robot)
//   - device_id: filter by device serial
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		Kind:     q.Get("kind"),
		DeviceID: q.Get("device_id"),
		Limit:    intParam(q.Get("limit")),
		Offset:   intParam(q.Get("offset")),
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses a query parameter, returning 0 for empty or malformed
// input so the repository's defaults apply.
func intParam(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

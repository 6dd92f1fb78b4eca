package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openbench/benchlink-core/internal/instrument"
)

// DeviceInfo is a device entry in list responses, the registry record
// plus whether the manager currently holds its connection.
type DeviceInfo struct {
	instrument.Device
	Connected bool `json:"connected"`
}

// handleListDevices returns every known device across all instrument kinds.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := []DeviceInfo{}
	for _, m := range s.managers {
		conn := m.ConnectionState()
		for _, d := range m.Devices() {
			devices = append(devices, DeviceInfo{
				Device:    d,
				Connected: conn.Connected && conn.ConnectedDeviceID == d.ID,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// DiscoverRequest optionally narrows a discovery pass to one kind.
type DiscoverRequest struct {
	Kind string `json:"kind,omitempty"`
}

// handleDiscover runs device discovery and replaces the registries.
// With no body (or an empty kind) every enabled instrument is scanned.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	targets := s.managers
	if req.Kind != "" {
		kind := instrument.Kind(req.Kind)
		m, ok := s.managers[kind]
		if !ok {
			writeNotFound(w, "no such instrument kind: "+req.Kind)
			return
		}
		targets = map[instrument.Kind]*instrument.Manager{kind: m}
	}

	found := make(map[string]int, len(targets))
	for kind, m := range targets {
		n, err := m.Discover(r.Context())
		if err != nil {
			s.logger.Warn("discovery failed", "kind", kind, "error", err)
			writeInternalError(w, "discovery failed for "+string(kind))
			return
		}
		found[string(kind)] = n
		s.auditLog("discover", kind, "", map[string]any{"found": n})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"found":  found,
	})
}

// handleConnect attaches the owning manager to the given device.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m := s.managerForDevice(id)
	if m == nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	if err := m.Connect(r.Context(), id); err != nil {
		if errors.Is(err, instrument.ErrDeviceNotFound) {
			writeNotFound(w, "device not found: "+id)
			return
		}
		s.logger.Warn("connect failed", "device", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "connect failed: "+err.Error())
		return
	}

	s.auditLog("connect", m.Kind(), id, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "connected",
		"device_id": id,
	})
}

// handleDisconnect drops the connection to the given device.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m := s.managerForDevice(id)
	if m == nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	conn := m.ConnectionState()
	if !conn.Connected || conn.ConnectedDeviceID != id {
		writeError(w, http.StatusConflict, ErrCodeConflict, "device is not connected: "+id)
		return
	}

	if err := m.Disconnect(r.Context()); err != nil {
		s.logger.Warn("disconnect failed", "device", id, "error", err)
		writeInternalError(w, "disconnect failed: "+err.Error())
		return
	}

	s.auditLog("disconnect", m.Kind(), id, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "disconnected",
		"device_id": id,
	})
}

// DeviceStatusResponse is the response body for a device status query.
type DeviceStatusResponse struct {
	DeviceID  string                     `json:"device_id"`
	Kind      instrument.Kind            `json:"kind"`
	Connected bool                       `json:"connected"`
	Snapshot  *instrument.StatusSnapshot `json:"snapshot,omitempty"`
	Poll      PollStatus                 `json:"poll"`
}

// PollStatus reports the poller's view of the connection.
type PollStatus struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	BackoffActive       bool       `json:"backoff_active"`
	LastAttempt         *time.Time `json:"last_attempt,omitempty"`
}

// handleDeviceStatus returns the latest polled snapshot for a device.
// The snapshot is the cached result of the most recent poll; no adapter
// round-trip happens on this path.
func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m := s.managerForDevice(id)
	if m == nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	conn, snap := m.State()
	resp := DeviceStatusResponse{
		DeviceID:  id,
		Kind:      m.Kind(),
		Connected: conn.Connected && conn.ConnectedDeviceID == id,
		Poll: PollStatus{
			ConsecutiveFailures: conn.ConsecutiveFailures,
			BackoffActive:       conn.BackoffActive,
		},
	}
	if !conn.LastAttempt.IsZero() {
		t := conn.LastAttempt
		resp.Poll.LastAttempt = &t
	}
	if resp.Connected {
		resp.Snapshot = &snap
	}

	writeJSON(w, http.StatusOK, resp)
}

// managerForDevice finds the manager whose registry holds the given id.
func (s *Server) managerForDevice(id string) *instrument.Manager {
	for _, m := range s.managers {
		for _, d := range m.Devices() {
			if d.ID == id {
				return m
			}
		}
	}
	return nil
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openbench/benchlink-core/internal/instrument"
)

// CommandRequest dispatches one command to an instrument manager.
type CommandRequest struct {
	// Kind selects the target instrument (reader, shaker, robot).
	Kind string `json:"kind"`

	// Command is the command name, e.g. "set_temperature".
	Command string `json:"command"`

	// Args carries command-specific arguments, validated downstream.
	Args json.RawMessage `json:"args,omitempty"`
}

// CommandResponse reports the dispatch outcome.
type CommandResponse struct {
	Result      instrument.ResultCode `json:"result"`
	ResultText  string                `json:"result_text"`
	Error       string                `json:"error,omitempty"`
	OperationID string                `json:"operation_id,omitempty"`
}

// handleCommand validates and dispatches a command.
//
// start_measurement is dispatched asynchronously: the response carries the
// running operation's id and the client follows it via /operations/{id}.
// Every other command executes synchronously.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	m, ok := s.managers[instrument.Kind(req.Kind)]
	if !ok {
		writeNotFound(w, "no such instrument kind: "+req.Kind)
		return
	}

	if req.Command == instrument.CmdStartMeasurement {
		s.handleStartMeasurement(w, r, m, req.Args)
		return
	}

	code, err := m.Invoke(r.Context(), req.Command, req.Args)
	resp := CommandResponse{
		Result:     code,
		ResultText: code.String(),
	}
	if err != nil {
		resp.Error = err.Error()
	}

	s.auditLog("command", m.Kind(), m.ConnectionState().ConnectedDeviceID, map[string]any{
		"command": req.Command,
		"result":  code.String(),
	})
	writeJSON(w, httpStatusFor(code), resp)
}

// handleStartMeasurement starts a measurement run without holding the
// HTTP request open for its duration.
func (s *Server) handleStartMeasurement(w http.ResponseWriter, r *http.Request, m *instrument.Manager, raw json.RawMessage) {
	var args instrument.StartMeasurementArgs
	if err := json.Unmarshal(ensureBody(raw), &args); err != nil {
		writeBadRequest(w, "invalid measurement arguments")
		return
	}
	if err := args.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{
			Result:     instrument.ResultInvalidArguments,
			ResultText: instrument.ResultInvalidArguments.String(),
			Error:      err.Error(),
		})
		return
	}

	// Detach from the request context: closing the HTTP connection must
	// not cancel a run already in motion on the instrument.
	op, err := m.StartMeasurementAsync(context.WithoutCancel(r.Context()), args)
	if err != nil {
		code := instrument.ResultGenericFailure
		if errors.Is(err, instrument.ErrNotConnected) {
			code = instrument.ResultNotConnected
		}
		writeJSON(w, httpStatusFor(code), CommandResponse{
			Result:     code,
			ResultText: code.String(),
			Error:      err.Error(),
		})
		return
	}

	s.auditLog("command", m.Kind(), op.DeviceID, map[string]any{
		"command":      instrument.CmdStartMeasurement,
		"operation_id": op.ID,
	})
	writeJSON(w, http.StatusAccepted, CommandResponse{
		Result:      instrument.ResultSuccess,
		ResultText:  instrument.ResultSuccess.String(),
		OperationID: op.ID,
	})
}

// httpStatusFor maps command result codes onto HTTP status codes.
func httpStatusFor(code instrument.ResultCode) int {
	switch code {
	case instrument.ResultSuccess:
		return http.StatusOK
	case instrument.ResultInvalidArguments:
		return http.StatusBadRequest
	case instrument.ResultNotFound:
		return http.StatusNotFound
	case instrument.ResultNotConnected:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// ensureBody substitutes an empty JSON object for a missing args field so
// argument structs decode to their zero value.
func ensureBody(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

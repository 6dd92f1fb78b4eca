package instrument

import (
	"encoding/json"
	"time"
)

// MQTT message payloads exchanged with the supervisory network.
// Topic layout lives in internal/infrastructure/mqtt; these are the bodies.

// StatusMessage carries a connection and status snapshot for one instrument.
// Topic: benchlink/status/{kind}
// QoS: 1, Retained: Yes
type StatusMessage struct {
	// Kind identifies the instrument family (reader, shaker, robot).
	Kind Kind `json:"kind"`

	// Timestamp is when the snapshot was taken (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Connected reports whether a device is currently attached.
	Connected bool `json:"connected"`

	// DeviceID is the connected device, empty when disconnected.
	DeviceID string `json:"device_id,omitempty"`

	// Snapshot holds the last status read, omitted while disconnected.
	Snapshot *StatusSnapshot `json:"snapshot,omitempty"`
}

// NewStatusMessage builds a StatusMessage from the manager's current view.
//
// Parameters:
//   - kind: Instrument family
//   - conn: Current connection state
//   - snap: Latest status snapshot (nil when disconnected)
//
// Returns:
//   - StatusMessage: Ready to serialise and publish
func NewStatusMessage(kind Kind, conn ConnectionState, snap *StatusSnapshot) StatusMessage {
	msg := StatusMessage{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Connected: conn.Connected,
	}
	if conn.Connected {
		msg.DeviceID = conn.ConnectedDeviceID
		msg.Snapshot = snap
	}
	return msg
}

// CommandMessage is received from the supervisory network to invoke a command.
// Topic: benchlink/command/{kind}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgements.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name (e.g., "connect", "set_temperature").
	Command string `json:"command"`

	// Args contains command-specific values, left opaque until the
	// manager validates them against the command's argument schema.
	Args json.RawMessage `json:"args,omitempty"`

	// Source indicates where the command originated.
	// Values: "api", "scheduler", "operator"
	Source string `json:"source,omitempty"`
}

// AckMessage acknowledges a CommandMessage.
// Topic: benchlink/ack/{kind}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgement was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Kind identifies the instrument family that handled the command.
	Kind Kind `json:"kind"`

	// Result is the numeric outcome of the command.
	Result ResultCode `json:"result"`

	// ResultText is the human-readable form of Result.
	ResultText string `json:"result_text"`

	// Error contains details when Result is non-zero.
	Error string `json:"error,omitempty"`

	// OperationID is set for commands that started a tracked operation.
	OperationID string `json:"operation_id,omitempty"`
}

// NewAckMessage builds an acknowledgement for a handled command.
func NewAckMessage(commandID string, kind Kind, result ResultCode, err error) AckMessage {
	msg := AckMessage{
		CommandID:  commandID,
		Timestamp:  time.Now().UTC(),
		Kind:       kind,
		Result:     result,
		ResultText: result.String(),
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// OperationMessage reports an operation lifecycle event.
// Topic: benchlink/operation/{kind}
// QoS: 1, Retained: No
type OperationMessage struct {
	// OperationID is the tracked operation identifier.
	OperationID string `json:"operation_id"`

	// Timestamp is when the event was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the device the operation ran on.
	DeviceID string `json:"device_id"`

	// Kind identifies the instrument family.
	Kind Kind `json:"kind"`

	// Name is the operation name (e.g., "start_measurement").
	Name string `json:"name"`

	// State is the operation state at the time of the event.
	State OperationState `json:"state"`

	// DataPoints is the number of data events observed so far.
	DataPoints int `json:"data_points"`

	// ResultLocation is where results were stored, if known.
	ResultLocation string `json:"result_location,omitempty"`
}

// NewOperationMessage builds an OperationMessage from an Operation record.
func NewOperationMessage(op Operation) OperationMessage {
	return OperationMessage{
		OperationID:    op.ID,
		Timestamp:      time.Now().UTC(),
		DeviceID:       op.DeviceID,
		Kind:           op.Kind,
		Name:           op.Name,
		State:          op.State,
		DataPoints:     op.DataPoints,
		ResultLocation: op.ResultLocation,
	}
}

// DiscoveryMessage reports the devices found by a discovery pass.
// Topic: benchlink/discovery/{kind}
// QoS: 1, Retained: Yes
type DiscoveryMessage struct {
	// Kind identifies the instrument family that was scanned.
	Kind Kind `json:"kind"`

	// Timestamp is when the scan completed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Devices lists everything the adapter reported, present or not.
	Devices []Device `json:"devices"`
}

// HealthStatus represents the operational status of an instrument manager.
type HealthStatus string

const (
	// HealthHealthy indicates the manager is connected and polling normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the manager is running with issues
	// (no device attached, or polling backed off after repeated failures).
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the manager is not reachable (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the manager is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the manager is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the operational status of one instrument manager.
// Topic: benchlink/health/{kind}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Kind identifies the instrument family.
	Kind Kind `json:"kind"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the core software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the manager has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Connection describes the instrument link, omitted in LWT payloads.
	Connection *ConnectionReport `json:"connection,omitempty"`

	// DevicesKnown is the number of devices in the registry.
	DevicesKnown int `json:"devices_known"`

	// Reason explains the status (especially for degraded/offline).
	Reason string `json:"reason,omitempty"`
}

// ConnectionReport describes the instrument connection inside a HealthMessage.
type ConnectionReport struct {
	// Connected reports whether a device is attached.
	Connected bool `json:"connected"`

	// DeviceID is the connected device, empty when disconnected.
	DeviceID string `json:"device_id,omitempty"`

	// BackoffActive reports whether polling has slowed after failures.
	BackoffActive bool `json:"backoff_active"`

	// ConsecutiveFailures is the current poll failure streak.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// NewLWTMessage builds the Last Will payload published by the broker when
// the core drops off the supervisory network unexpectedly.
func NewLWTMessage(kind Kind) HealthMessage {
	return HealthMessage{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "connection lost",
	}
}

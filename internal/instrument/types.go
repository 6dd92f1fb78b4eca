package instrument

import "time"

// Kind identifies the instrument family a manager drives.
type Kind string

const (
	// KindReader is a microplate reader.
	KindReader Kind = "reader"

	// KindShaker is a thermoshaker/incubator module.
	KindShaker Kind = "shaker"

	// KindRobot is a liquid-handling robot.
	KindRobot Kind = "robot"
)

// Valid reports whether k is a recognised instrument kind.
func (k Kind) Valid() bool {
	switch k {
	case KindReader, KindShaker, KindRobot:
		return true
	}
	return false
}

// Device describes one piece of hardware found by a discovery pass.
//
// Devices are identified by a stable natural key: the vendor serial number,
// or the slot index for fixed-slot hardware. A discovery pass replaces the
// registry contents wholesale; Device values are never mutated in place.
type Device struct {
	// ID is the vendor serial number, or a slot-derived identifier for
	// hardware without serials.
	ID string `json:"id"`

	// DisplayName is the human-readable device name reported by the driver.
	DisplayName string `json:"display_name"`

	// Kind is the instrument family this device belongs to.
	Kind Kind `json:"kind"`

	// Slot is the physical slot index for fixed-slot hardware.
	Slot *int `json:"slot,omitempty"`

	// Present indicates the device responded during the discovery pass.
	Present bool `json:"present"`
}

// ConnectionState tracks the single physical connection a Manager holds.
//
// There is one ConnectionState per manager, not per device: only one
// connection exists at a time. BackoffActive is true iff
// ConsecutiveFailures has reached the configured threshold and has not yet
// been cleared by a successful poll.
type ConnectionState struct {
	Connected           bool      `json:"connected"`
	ConnectedDeviceID   string    `json:"connected_device_id,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	BackoffActive       bool      `json:"backoff_active"`
	LastAttempt         time.Time `json:"last_attempt"`
}

// StatusSnapshot holds the most recently polled set of status values.
//
// Values are only meaningful while connected; the snapshot is cleared to
// zero values on disconnect. Fields not supported by a given instrument
// kind stay at their zero value.
type StatusSnapshot struct {
	// Temperature is the measured temperature in degrees Celsius.
	Temperature float64 `json:"temperature_c"`

	// TargetTemperature is the commanded setpoint in degrees Celsius.
	TargetTemperature float64 `json:"target_temperature_c"`

	// ShakingRPM is the measured shaking speed. Float because real
	// tachometers report fractional readings while ramping.
	ShakingRPM float64 `json:"shaking_rpm"`

	// TargetRPM is the commanded shaking speed.
	TargetRPM float64 `json:"target_rpm"`

	// PlateIn indicates a plate is present in the instrument.
	PlateIn bool `json:"plate_in"`

	// ClampClosed indicates the plate clamp is engaged.
	ClampClosed bool `json:"clamp_closed"`

	// Device information strings from the driver.
	Model    string `json:"model,omitempty"`
	Serial   string `json:"serial,omitempty"`
	Firmware string `json:"firmware,omitempty"`

	// UpdatedAt is when this snapshot was taken.
	UpdatedAt time.Time `json:"updated_at"`
}

// ResultCode is the uniform outcome contract for dispatched commands.
//
// Negative codes are failures; callers on the supervisory network switch on
// the code rather than parsing error strings.
type ResultCode int

const (
	// ResultSuccess indicates the command completed.
	ResultSuccess ResultCode = 0

	// ResultGenericFailure covers adapter-reported failures and faults.
	ResultGenericFailure ResultCode = -1

	// ResultNotFound is returned by connect-by-id when the id is absent
	// from the current registry snapshot.
	ResultNotFound ResultCode = -2

	// ResultNotConnected is returned when a command requires a connected
	// device and none is connected. No adapter call is made.
	ResultNotConnected ResultCode = -3

	// ResultInvalidArguments is returned when argument validation fails
	// before any adapter call.
	ResultInvalidArguments ResultCode = -4
)

// String returns a human-readable name for the result code.
func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultGenericFailure:
		return "generic_failure"
	case ResultNotFound:
		return "not_found"
	case ResultNotConnected:
		return "not_connected"
	case ResultInvalidArguments:
		return "invalid_arguments"
	default:
		return "unknown"
	}
}

// ChangeReason tags a progress event with what changed.
type ChangeReason string

const (
	// ReasonData marks an event carrying a measured value.
	ReasonData ChangeReason = "data"

	// ReasonAction marks an event describing instrument activity
	// (carrier movement, cycle start, run completion).
	ReasonAction ChangeReason = "action"

	// ReasonOther covers driver events that are neither data nor action.
	ReasonOther ChangeReason = "other"
)

// ProgressEvent is one asynchronous notification from a measurement run.
//
// Only Reason is always meaningful; the remaining fields are populated
// when the driver supplies them.
type ProgressEvent struct {
	Reason       ChangeReason `json:"reason"`
	ActionLabel  string       `json:"action_label,omitempty"`
	CycleCurrent int          `json:"cycle_current,omitempty"`
	CycleTotal   int          `json:"cycle_total,omitempty"`
	Row          int          `json:"row,omitempty"`
	Col          int          `json:"col,omitempty"`
	Value        float64      `json:"value,omitempty"`
	At           time.Time    `json:"at"`
}

// OperationState is the lifecycle state of a long-running operation.
type OperationState string

const (
	// OperationRunning means the operation has started and not yet
	// reached a terminal state.
	OperationRunning OperationState = "running"

	// OperationCompleted means completion was detected, either from an
	// explicit action label or from stream quiescence.
	OperationCompleted OperationState = "completed"

	// OperationTimedOut means the absolute timeout elapsed before
	// completion was detected. Reported distinctly so callers can tell
	// "device refused" from "device stopped responding".
	OperationTimedOut OperationState = "timed_out"

	// OperationCancelled means the caller's context was cancelled while
	// the operation was running.
	OperationCancelled OperationState = "cancelled"
)

// Terminal reports whether s is a terminal state.
func (s OperationState) Terminal() bool {
	return s == OperationCompleted || s == OperationTimedOut || s == OperationCancelled
}

// Operation records one long-running device action (a measurement run).
//
// An Operation is owned by the measurement monitor until it reaches a
// terminal state, at which point ownership transfers back to the dispatcher
// for result reporting. Operations are never reused across runs.
type Operation struct {
	// ID is a unique operation identifier (UUID).
	ID string `json:"id"`

	// DeviceID is the device the operation ran against.
	DeviceID string `json:"device_id"`

	// Kind is the instrument family.
	Kind Kind `json:"kind"`

	// Name is the dispatched command name (e.g. "start_measurement").
	Name string `json:"name"`

	// Parameters echoes the command parameters for auditing.
	Parameters map[string]string `json:"parameters,omitempty"`

	// StartedAt is when the adapter call was issued.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the terminal state was reached.
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// State is the current lifecycle state.
	State OperationState `json:"state"`

	// DataPoints is the number of data events observed during the run.
	DataPoints int `json:"data_points"`

	// ResultLocation points at the stored result, filled by the caller
	// once post-processing completes.
	ResultLocation string `json:"result_location,omitempty"`
}

package instrument

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Command names accepted by Manager.Invoke. Not every kind implements
// every command; unsupported combinations fail at the adapter.
const (
	CmdDiscover         = "discover"
	CmdConnect          = "connect"
	CmdConnectSlot      = "connect_slot"
	CmdDisconnect       = "disconnect"
	CmdSetTemperature   = "set_temperature"
	CmdSetShakingRPM    = "set_shaking_rpm"
	CmdStartShaking     = "start_shaking"
	CmdStopShaking      = "stop_shaking"
	CmdOpenClamp        = "open_clamp"
	CmdCloseClamp       = "close_clamp"
	CmdMovePlate        = "move_plate"
	CmdStartMeasurement = "start_measurement"
)

// Argument structs for commands that take parameters. Arguments arrive as
// JSON (from MQTT or the REST API) and are validated before any adapter
// call; unknown fields are rejected so malformed payloads fail loudly.

// ConnectArgs selects a device by its serial/id key.
type ConnectArgs struct {
	DeviceID string `json:"device_id"`
}

// Validate checks the arguments.
func (a ConnectArgs) Validate() error {
	if a.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidArguments)
	}
	return nil
}

// ConnectSlotArgs selects a device by slot index for fixed-slot hardware.
type ConnectSlotArgs struct {
	Slot int `json:"slot"`
}

// Validate checks the arguments.
func (a ConnectSlotArgs) Validate() error {
	if a.Slot < 0 {
		return fmt.Errorf("%w: slot must be non-negative", ErrInvalidArguments)
	}
	return nil
}

// SetTemperatureArgs carries a temperature setpoint in degrees Celsius.
type SetTemperatureArgs struct {
	Celsius float64 `json:"celsius"`
}

// Validate checks the setpoint is within the hardware envelope.
// The range covers ambient-cooled incubation through PCR denaturation.
func (a SetTemperatureArgs) Validate() error {
	if a.Celsius < 4 || a.Celsius > 105 {
		return fmt.Errorf("%w: celsius %.1f out of range [4, 105]", ErrInvalidArguments, a.Celsius)
	}
	return nil
}

// SetShakingRPMArgs carries a shaking-speed setpoint.
type SetShakingRPMArgs struct {
	RPM float64 `json:"rpm"`
}

// Validate checks the setpoint. Zero is valid and stops the shaker.
func (a SetShakingRPMArgs) Validate() error {
	if a.RPM < 0 || a.RPM > 3000 {
		return fmt.Errorf("%w: rpm %.0f out of range [0, 3000]", ErrInvalidArguments, a.RPM)
	}
	return nil
}

// MovePlateArgs describes a plate transfer between two named positions.
type MovePlateArgs struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Validate checks both positions are supplied and distinct.
func (a MovePlateArgs) Validate() error {
	if a.Source == "" || a.Target == "" {
		return fmt.Errorf("%w: source and target are required", ErrInvalidArguments)
	}
	if a.Source == a.Target {
		return fmt.Errorf("%w: source and target must differ", ErrInvalidArguments)
	}
	return nil
}

// StartMeasurementArgs describes an asynchronous measurement run.
type StartMeasurementArgs struct {
	// Script is the opaque vendor measurement script, passed through to
	// the adapter unmodified.
	Script string `json:"script"`

	// TimeoutSeconds is the absolute run timeout. Zero selects the
	// configured default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Validate checks the arguments.
func (a StartMeasurementArgs) Validate() error {
	if a.Script == "" {
		return fmt.Errorf("%w: script is required", ErrInvalidArguments)
	}
	if a.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeout_seconds must be non-negative", ErrInvalidArguments)
	}
	return nil
}

// audit returns the parameters in string form for the operation record.
func (a StartMeasurementArgs) audit() map[string]string {
	params := map[string]string{"script_bytes": strconv.Itoa(len(a.Script))}
	if a.TimeoutSeconds > 0 {
		params["timeout_seconds"] = strconv.Itoa(a.TimeoutSeconds)
	}
	return params
}

// decodeArgs unmarshals raw JSON arguments into the given struct, rejecting
// unknown fields. An empty payload decodes to the zero value so commands
// without arguments accept both `{}` and nothing at all.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openbench/benchlink-core/internal/instrument"
)

// Robot simulates a liquid-handling robot's plate transport.
type Robot struct {
	mu        sync.Mutex
	devices   []instrument.Device
	connected bool
	current   instrument.Device

	// plateAt is the position name of the carried plate, empty when the
	// gripper is free.
	plateAt string
	moves   int
}

// NewRobot creates a simulated liquid-handling robot.
func NewRobot() *Robot {
	return &Robot{
		devices: []instrument.Device{
			{ID: "LH-900-0007", DisplayName: "Liquid Handler 900", Kind: instrument.KindRobot, Present: true},
		},
	}
}

// Discover returns the robot roster.
func (r *Robot) Discover(_ context.Context) ([]instrument.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]instrument.Device, len(r.devices))
	copy(out, r.devices)
	return out, nil
}

// Connect attaches to the robot.
func (r *Robot) Connect(_ context.Context, device instrument.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.devices {
		if d.ID == device.ID {
			r.connected = true
			r.current = d
			return nil
		}
	}
	return fmt.Errorf("sim: no robot with id %q", device.ID)
}

// Disconnect drops the link.
func (r *Robot) Disconnect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	r.current = instrument.Device{}
	return nil
}

// IsConnected reports the link state.
func (r *Robot) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// ReadStatus returns the robot's current state. PlateIn reports whether
// the gripper is holding a plate.
func (r *Robot) ReadStatus(_ context.Context) (instrument.StatusSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return instrument.StatusSnapshot{}, instrument.ErrNotConnected
	}

	return instrument.StatusSnapshot{
		PlateIn:   r.plateAt != "",
		Model:     "SimHandler 900",
		Serial:    r.current.ID,
		Firmware:  "1.8.3-sim",
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// SendCommand executes a robot operation.
func (r *Robot) SendCommand(_ context.Context, name string, args map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return nil, instrument.ErrNotConnected
	}

	switch name {
	case instrument.CmdMovePlate:
		source, _ := args["source"].(string)
		target, _ := args["target"].(string)
		if source == "" || target == "" {
			return nil, fmt.Errorf("sim: move_plate needs source and target positions")
		}
		r.plateAt = target
		r.moves++
		return map[string]any{"position": target}, nil

	default:
		return nil, fmt.Errorf("%w: %q", instrument.ErrUnknownCommand, name)
	}
}

// Moves returns the number of completed plate transports.
func (r *Robot) Moves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.moves
}

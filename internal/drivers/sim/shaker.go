package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openbench/benchlink-core/internal/instrument"
)

// Thermal and mechanical ramp rates for the shaker model.
const (
	// tempRampPerSecond is how fast the block temperature moves toward
	// its setpoint, in degrees Celsius per second.
	tempRampPerSecond = 1.5

	// rpmRampPerSecond is how fast the mixer spins up or coasts down.
	rpmRampPerSecond = 600.0

	// ambientCelsius is where the block settles with heating off.
	ambientCelsius = 22.0
)

// Shaker simulates a two-slot thermoshaker.
type Shaker struct {
	mu        sync.Mutex
	devices   []instrument.Device
	connected bool
	current   instrument.Device

	targetTemp  float64
	temperature float64
	targetRPM   float64
	rpm         float64
	shaking     bool
	clampClosed bool

	lastStep time.Time
}

// NewShaker creates a simulated thermoshaker with two fixed slots.
func NewShaker() *Shaker {
	slot1, slot2 := 1, 2
	return &Shaker{
		devices: []instrument.Device{
			{ID: "TS-2400-0001", DisplayName: "Thermoshaker slot 1", Kind: instrument.KindShaker, Slot: &slot1, Present: true},
			{ID: "TS-2400-0002", DisplayName: "Thermoshaker slot 2", Kind: instrument.KindShaker, Slot: &slot2, Present: true},
		},
		targetTemp:  ambientCelsius,
		temperature: ambientCelsius,
		lastStep:    time.Now(),
	}
}

// Discover returns the fixed slot roster.
func (s *Shaker) Discover(_ context.Context) ([]instrument.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]instrument.Device, len(s.devices))
	copy(out, s.devices)
	return out, nil
}

// Connect attaches to one slot. Connecting while already connected
// replaces the attached device, matching real slot hardware.
func (s *Shaker) Connect(_ context.Context, device instrument.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.roster(device.ID) {
		return fmt.Errorf("sim: no shaker with id %q", device.ID)
	}
	s.connected = true
	s.current = device
	s.lastStep = time.Now()
	return nil
}

// Disconnect drops the link. Heating and shaking state persists, as it
// does on the physical unit.
func (s *Shaker) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.current = instrument.Device{}
	return nil
}

// IsConnected reports the link state.
func (s *Shaker) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ReadStatus advances the physical model and returns the current values.
func (s *Shaker) ReadStatus(_ context.Context) (instrument.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return instrument.StatusSnapshot{}, instrument.ErrNotConnected
	}
	s.step(time.Now())

	return instrument.StatusSnapshot{
		Temperature:       s.temperature,
		TargetTemperature: s.targetTemp,
		ShakingRPM:        s.rpm,
		TargetRPM:         s.targetRPM,
		ClampClosed:       s.clampClosed,
		Model:             "SimShaker 2400",
		Serial:            s.current.ID,
		Firmware:          "2.4.1-sim",
		UpdatedAt:         time.Now().UTC(),
	}, nil
}

// SendCommand executes a shaker operation.
func (s *Shaker) SendCommand(_ context.Context, name string, args map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, instrument.ErrNotConnected
	}
	s.step(time.Now())

	switch name {
	case instrument.CmdSetTemperature:
		celsius, ok := args["celsius"].(float64)
		if !ok {
			return nil, fmt.Errorf("sim: set_temperature needs a celsius value")
		}
		s.targetTemp = celsius

	case instrument.CmdSetShakingRPM:
		rpm, ok := args["rpm"].(float64)
		if !ok {
			return nil, fmt.Errorf("sim: set_shaking_rpm needs an rpm value")
		}
		s.targetRPM = rpm

	case instrument.CmdStartShaking:
		if s.targetRPM == 0 {
			return nil, fmt.Errorf("sim: cannot start shaking with rpm setpoint 0")
		}
		s.shaking = true

	case instrument.CmdStopShaking:
		s.shaking = false
		s.targetRPM = 0

	case instrument.CmdOpenClamp:
		if s.shaking {
			return nil, fmt.Errorf("sim: refusing to open clamp while shaking")
		}
		s.clampClosed = false

	case instrument.CmdCloseClamp:
		s.clampClosed = true

	default:
		return nil, fmt.Errorf("%w: %q", instrument.ErrUnknownCommand, name)
	}

	return nil, nil
}

// step advances temperature and rpm by the elapsed wall time.
// Caller must hold s.mu.
func (s *Shaker) step(now time.Time) {
	elapsed := now.Sub(s.lastStep).Seconds()
	if elapsed <= 0 {
		return
	}
	s.lastStep = now

	s.temperature = approach(s.temperature, s.targetTemp, tempRampPerSecond*elapsed)

	rpmGoal := 0.0
	if s.shaking {
		rpmGoal = s.targetRPM
	}
	s.rpm = approach(s.rpm, rpmGoal, rpmRampPerSecond*elapsed)
}

// roster reports whether the given id is in the device list.
// Caller must hold s.mu.
func (s *Shaker) roster(id string) bool {
	for _, d := range s.devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// approach moves current toward goal by at most delta.
func approach(current, goal, delta float64) float64 {
	switch {
	case current < goal:
		if current+delta > goal {
			return goal
		}
		return current + delta
	case current > goal:
		if current-delta < goal {
			return goal
		}
		return current - delta
	default:
		return current
	}
}

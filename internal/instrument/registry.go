package instrument

import (
	"fmt"
	"sync"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches the set of devices found by the last discovery pass.
//
// The contents are replaced wholesale on each re-discovery and never
// mutated in place; readers always see either the old snapshot or the new
// one, never a mix. Lookups use the device's stable natural key (serial,
// or slot index for fixed-slot hardware).
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices []Device
	byID    map[string]Device
	bySlot  map[int]Device
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]Device),
		bySlot: make(map[int]Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Replace swaps the registry contents with the given discovery result and
// returns the number of devices with Present == true.
//
// A nil or empty slice is valid and leaves the registry empty; it is not
// an error for a discovery pass to find nothing.
func (r *Registry) Replace(devices []Device) int {
	byID := make(map[string]Device, len(devices))
	bySlot := make(map[int]Device, len(devices))
	present := 0
	for _, d := range devices {
		if d.ID != "" {
			byID[d.ID] = d
		}
		if d.Slot != nil {
			bySlot[*d.Slot] = d
		}
		if d.Present {
			present++
		}
	}

	snapshot := make([]Device, len(devices))
	copy(snapshot, devices)

	r.mu.Lock()
	r.devices = snapshot
	r.byID = byID
	r.bySlot = bySlot
	logger := r.logger
	r.mu.Unlock()

	logger.Info("device registry replaced", "total", len(devices), "present", present)
	return present
}

// Get looks up a device by its serial/id key.
// Returns ErrDeviceNotFound if the id is absent from the last discovery.
func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	d, ok := r.byID[id]
	r.mu.RUnlock()

	if !ok {
		return Device{}, fmt.Errorf("%w: id %q", ErrDeviceNotFound, id)
	}
	return d, nil
}

// GetBySlot looks up a device by its slot index.
// Returns ErrDeviceNotFound if no device occupies the slot.
func (r *Registry) GetBySlot(slot int) (Device, error) {
	r.mu.RLock()
	d, ok := r.bySlot[slot]
	r.mu.RUnlock()

	if !ok {
		return Device{}, fmt.Errorf("%w: slot %d", ErrDeviceNotFound, slot)
	}
	return d, nil
}

// List returns a copy of the current registry snapshot.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, len(r.devices))
	copy(devices, r.devices)
	return devices
}

// Count returns the total number of devices in the snapshot.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

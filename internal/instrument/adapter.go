package instrument

import "context"

// Adapter is the abstraction boundary to a vendor-specific driver for one
// instrument kind. Implementations wrap opaque connect / send-command /
// read-response primitives; their internal data formats (measurement-script
// XML, serial syntax, motion primitives) are not this package's concern.
//
// The Manager serialises all Adapter calls under its lock: implementations
// do not need to be safe for concurrent use, but individual calls must
// honour the supplied context and return rather than block forever.
type Adapter interface {
	// Discover enumerates attached devices. A nil or empty result means
	// zero devices, not an error.
	Discover(ctx context.Context) ([]Device, error)

	// Connect establishes a connection to the given device. On failure
	// the adapter must be left disconnected.
	Connect(ctx context.Context, device Device) error

	// Disconnect releases the connection. Idempotent.
	Disconnect(ctx context.Context) error

	// IsConnected reports whether the physical link is currently up.
	// Called on every poll tick; must be cheap.
	IsConnected() bool

	// ReadStatus reads the instrument's current status values.
	ReadStatus(ctx context.Context) (StatusSnapshot, error)

	// SendCommand executes a named device operation synchronously and
	// returns any driver outputs. Args follow JSON decoding conventions:
	// numbers are float64, strings are string, flags are bool.
	// Implementations assert those types and reject anything else.
	SendCommand(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// MeasurementAdapter is implemented by adapters whose device supports
// asynchronously-completing runs (the plate reader).
//
// StartMeasurement returns immediately with a per-run progress channel. The
// adapter owns the channel: it must be buffered, sends must never block
// indefinitely (drop when full), and the adapter must close it when its run
// ends or its driver detaches. The monitor may stop receiving at any time
// once a terminal state is reached.
type MeasurementAdapter interface {
	Adapter

	// StartMeasurement begins a run described by the opaque vendor
	// script and returns the progress-event stream for this run.
	StartMeasurement(ctx context.Context, script string) (<-chan ProgressEvent, error)
}

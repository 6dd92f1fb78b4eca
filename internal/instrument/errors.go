package instrument

import "errors"

// Domain errors for the instrument package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, instrument.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotConnected is returned when a command requires a connected
	// device and none is connected.
	ErrNotConnected = errors.New("instrument: not connected")

	// ErrDeviceNotFound is returned when a device id or slot is absent
	// from the current registry snapshot.
	ErrDeviceNotFound = errors.New("instrument: device not found")

	// ErrOperationNotFound is returned when an operation id has no
	// history record.
	ErrOperationNotFound = errors.New("instrument: operation not found")

	// ErrInvalidArguments is returned when command argument validation
	// fails before any adapter call.
	ErrInvalidArguments = errors.New("instrument: invalid arguments")

	// ErrAdapterFault wraps any unexpected vendor-driver failure caught at
	// the dispatcher or poller boundary. Raw faults never propagate.
	ErrAdapterFault = errors.New("instrument: adapter fault")

	// ErrOperationTimeout is returned when a long-running operation
	// exceeds its absolute timeout. Distinct from generic failure.
	ErrOperationTimeout = errors.New("instrument: operation timed out")

	// ErrOperationCancelled is returned when a long-running operation is
	// cancelled via its context.
	ErrOperationCancelled = errors.New("instrument: operation cancelled")

	// ErrOperationInProgress is returned when a measurement is started
	// while another operation is still running on the same manager.
	ErrOperationInProgress = errors.New("instrument: operation in progress")

	// ErrUnknownCommand is returned by Invoke for a command name that no
	// instrument kind implements.
	ErrUnknownCommand = errors.New("instrument: unknown command")

	// ErrNotMeasurementCapable is returned when a measurement is started
	// on an adapter that does not support asynchronous runs.
	ErrNotMeasurementCapable = errors.New("instrument: adapter not measurement capable")
)

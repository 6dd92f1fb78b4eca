package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

// Publisher receives status snapshots and operation lifecycle events and
// pushes them to the supervisory network. Implementations must not block
// for long; they are called outside the manager lock but from the poll and
// dispatch goroutines.
type Publisher interface {
	// PublishStatus is called after every poll tick with the current
	// connection state and snapshot.
	PublishStatus(kind Kind, conn ConnectionState, snap StatusSnapshot)

	// PublishOperation is called when an operation starts and again when
	// it reaches a terminal state.
	PublishOperation(op Operation)
}

// noopPublisher discards everything.
type noopPublisher struct{}

func (noopPublisher) PublishStatus(Kind, ConnectionState, StatusSnapshot) {}
func (noopPublisher) PublishOperation(Operation)                          {}

// ManagerConfig holds the dependencies for a Manager.
type ManagerConfig struct {
	// Kind is the instrument family this manager drives.
	Kind Kind

	// Adapter is the vendor driver boundary. Required.
	Adapter Adapter

	// Poll tunes the status poller's failure accounting.
	Poll config.PollConfig

	// Monitor tunes measurement completion detection.
	Monitor config.MonitorConfig

	// Publisher receives snapshots and operation events. Optional.
	Publisher Publisher

	// History persists terminal operations. Optional.
	History *History

	// ProgressFunc, if set, is invoked for every progress event of a
	// running measurement. Optional; used for telemetry.
	ProgressFunc func(op Operation, ev ProgressEvent)

	// Logger is the structured logger. Optional.
	Logger Logger
}

// Manager owns one physical instrument connection and everything that
// touches it: the device registry, the connection state machine, the cached
// status snapshot and the command dispatcher.
//
// A single mutex guards all mutable state and serialises adapter calls;
// command execution may block its caller for a driver round trip, but the
// measurement wait loop runs outside the lock.
type Manager struct {
	kind     Kind
	adapter  Adapter
	registry *Registry
	poll     config.PollConfig
	monitor  *Monitor

	publisher    Publisher
	history      *History
	progressFunc func(op Operation, ev ProgressEvent)
	logger       Logger

	mu       sync.Mutex
	conn     ConnectionState
	snapshot StatusSnapshot
	current  *Operation
}

// NewManager creates a manager for one instrument kind.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = noopPublisher{}
	}

	monitor := NewMonitor(cfg.Monitor)
	monitor.SetLogger(logger)

	registry := NewRegistry()
	registry.SetLogger(logger)

	return &Manager{
		kind:         cfg.Kind,
		adapter:      cfg.Adapter,
		registry:     registry,
		poll:         cfg.Poll,
		monitor:      monitor,
		publisher:    publisher,
		history:      cfg.History,
		progressFunc: cfg.ProgressFunc,
		logger:       logger,
	}
}

// Kind returns the instrument family this manager drives.
func (m *Manager) Kind() Kind {
	return m.kind
}

// Devices returns the current registry snapshot.
func (m *Manager) Devices() []Device {
	return m.registry.List()
}

// Registry returns the manager's device registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// ConnectionState returns a copy of the current connection state.
func (m *Manager) ConnectionState() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// State returns the connection state and status snapshot together, taken
// under one lock acquisition so they are mutually consistent.
func (m *Manager) State() (ConnectionState, StatusSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn, m.snapshot
}

// CurrentOperation returns the most recent operation, if any.
func (m *Manager) CurrentOperation() (Operation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Operation{}, false
	}
	return *m.current, true
}

// Discover runs a discovery pass: it invokes the adapter's enumeration
// primitive, replaces the registry contents atomically and returns the
// number of devices with Present == true.
//
// A nil or empty adapter result is treated as zero devices, not an error.
// Discovery must be re-run before connecting to previously-unseen hardware.
func (m *Manager) Discover(ctx context.Context) (int, error) {
	m.mu.Lock()
	var devices []Device
	err := safeCall(func() error {
		found, err := m.adapter.Discover(ctx)
		if err != nil {
			return err
		}
		devices = found
		return nil
	})
	m.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("discovering devices: %w", err)
	}
	return m.registry.Replace(devices), nil
}

// Connect connects to the device with the given serial/id key.
//
// Idempotent when already connected to the same device (the adapter's
// connect primitive is not called a second time). When connected to a
// different device, that device is disconnected first. A failed attempt
// always leaves the state machine in Disconnected; retries are the status
// poller's concern via backoff, never this path's.
func (m *Manager) Connect(ctx context.Context, deviceID string) error {
	device, err := m.registry.Get(deviceID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx, device)
}

// ConnectBySlot connects to the device occupying the given slot, for
// fixed-slot hardware without usable serials.
func (m *Manager) ConnectBySlot(ctx context.Context, slot int) error {
	device, err := m.registry.GetBySlot(slot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx, device)
}

// connectLocked drives the Disconnected → Connecting → Connected
// transition. Caller holds m.mu.
func (m *Manager) connectLocked(ctx context.Context, device Device) error {
	if m.conn.Connected && m.conn.ConnectedDeviceID == device.ID {
		return nil
	}

	if m.conn.Connected {
		// Only one physical connection at a time: switch devices by
		// disconnecting first.
		previous := m.conn.ConnectedDeviceID
		if err := safeCall(func() error { return m.adapter.Disconnect(ctx) }); err != nil {
			m.logger.Warn("disconnect before switch failed",
				"kind", m.kind, "device_id", previous, "error", err)
		}
		m.conn.Connected = false
		m.conn.ConnectedDeviceID = ""
		m.snapshot = StatusSnapshot{}
		m.logger.Info("instrument disconnected", "kind", m.kind, "device_id", previous)
	}

	m.conn.LastAttempt = time.Now()

	if err := safeCall(func() error { return m.adapter.Connect(ctx, device) }); err != nil {
		// Never a half-connected state.
		m.conn.Connected = false
		m.conn.ConnectedDeviceID = ""
		m.logger.Warn("connect failed", "kind", m.kind, "device_id", device.ID, "error", err)
		return fmt.Errorf("connecting to %s: %w", device.ID, err)
	}

	m.conn.Connected = true
	m.conn.ConnectedDeviceID = device.ID
	m.logger.Info("instrument connected", "kind", m.kind, "device_id", device.ID)
	return nil
}

// Disconnect releases the current connection and clears the cached
// snapshot. Idempotent.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.conn.Connected {
		return nil
	}

	deviceID := m.conn.ConnectedDeviceID
	err := safeCall(func() error { return m.adapter.Disconnect(ctx) })

	m.conn.Connected = false
	m.conn.ConnectedDeviceID = ""
	m.snapshot = StatusSnapshot{}
	m.logger.Info("instrument disconnected", "kind", m.kind, "device_id", deviceID)

	if err != nil {
		return fmt.Errorf("disconnecting from %s: %w", deviceID, err)
	}
	return nil
}

// PollOnce runs one status-poll tick and publishes the result.
//
// On success the failure counter resets and backoff clears immediately; on
// failure the counter increments and backoff engages at the configured
// threshold. Connection-state edges are logged exactly once per edge, not
// once per tick.
func (m *Manager) PollOnce(ctx context.Context) {
	m.mu.Lock()

	wasConnected := m.conn.Connected

	var snap StatusSnapshot
	pollErr := safeCall(func() error {
		if !m.adapter.IsConnected() {
			return ErrNotConnected
		}
		s, err := m.adapter.ReadStatus(ctx)
		if err != nil {
			return err
		}
		snap = s
		return nil
	})

	if pollErr == nil {
		m.conn.ConsecutiveFailures = 0
		if m.conn.BackoffActive {
			m.conn.BackoffActive = false
			m.logger.Info("poll backoff cleared", "kind", m.kind)
		}
		m.conn.Connected = true
		snap.UpdatedAt = time.Now()
		m.snapshot = snap
	} else {
		m.conn.ConsecutiveFailures++
		if !m.conn.BackoffActive && m.conn.ConsecutiveFailures >= m.poll.FailureThreshold {
			m.conn.BackoffActive = true
			m.logger.Warn("poll backoff active",
				"kind", m.kind,
				"consecutive_failures", m.conn.ConsecutiveFailures)
		}
		if m.conn.Connected {
			m.conn.Connected = false
			m.conn.ConnectedDeviceID = ""
			m.snapshot = StatusSnapshot{}
		}
	}

	// Edge, not level: one log line per transition.
	if wasConnected != m.conn.Connected {
		if m.conn.Connected {
			m.logger.Info("instrument reachable", "kind", m.kind)
		} else {
			m.logger.Warn("instrument connection lost", "kind", m.kind, "error", pollErr)
		}
	}

	conn := m.conn
	snapshot := m.snapshot
	m.mu.Unlock()

	m.publisher.PublishStatus(m.kind, conn, snapshot)
}

// Invoke executes a named command against this manager and maps the
// outcome onto the uniform result-code contract.
//
// Argument validation happens before any adapter call; commands requiring
// a connection return ResultNotConnected without touching the adapter; and
// adapter panics are caught here and converted to ResultGenericFailure;
// they never propagate to the caller as a raw fault.
func (m *Manager) Invoke(ctx context.Context, name string, raw json.RawMessage) (code ResultCode, err error) {
	defer func() {
		if r := recover(); r != nil {
			code = ResultGenericFailure
			err = fmt.Errorf("%w: panic in %s: %v", ErrAdapterFault, name, r)
			m.logger.Error("command panicked", "kind", m.kind, "command", name, "panic", r)
		}
	}()

	switch name {
	case CmdDiscover:
		if _, derr := m.Discover(ctx); derr != nil {
			return ResultGenericFailure, derr
		}
		return ResultSuccess, nil

	case CmdConnect:
		var a ConnectArgs
		if err := decodeAndValidate(raw, &a); err != nil {
			return ResultInvalidArguments, err
		}
		if cerr := m.Connect(ctx, a.DeviceID); cerr != nil {
			if errors.Is(cerr, ErrDeviceNotFound) {
				return ResultNotFound, cerr
			}
			return ResultGenericFailure, cerr
		}
		return ResultSuccess, nil

	case CmdConnectSlot:
		var a ConnectSlotArgs
		if err := decodeAndValidate(raw, &a); err != nil {
			return ResultInvalidArguments, err
		}
		if cerr := m.ConnectBySlot(ctx, a.Slot); cerr != nil {
			if errors.Is(cerr, ErrDeviceNotFound) {
				return ResultNotFound, cerr
			}
			return ResultGenericFailure, cerr
		}
		return ResultSuccess, nil

	case CmdDisconnect:
		if derr := m.Disconnect(ctx); derr != nil {
			return ResultGenericFailure, derr
		}
		return ResultSuccess, nil

	case CmdSetTemperature:
		var a SetTemperatureArgs
		if err := decodeAndValidate(raw, &a); err != nil {
			return ResultInvalidArguments, err
		}
		return m.dispatch(ctx, name, map[string]any{"celsius": a.Celsius}, func(s *StatusSnapshot) {
			s.TargetTemperature = a.Celsius
		})

	case CmdSetShakingRPM:
		var a SetShakingRPMArgs
		if err := decodeAndValidate(raw, &a); err != nil {
			return ResultInvalidArguments, err
		}
		return m.dispatch(ctx, name, map[string]any{"rpm": a.RPM}, func(s *StatusSnapshot) {
			s.TargetRPM = a.RPM
		})

	case CmdStartShaking:
		return m.dispatch(ctx, name, nil, nil)

	case CmdStopShaking:
		return m.dispatch(ctx, name, nil, func(s *StatusSnapshot) {
			s.TargetRPM = 0
		})

	case CmdOpenClamp:
		return m.dispatch(ctx, name, nil, func(s *StatusSnapshot) {
			s.ClampClosed = false
		})

	case CmdCloseClamp:
		return m.dispatch(ctx, name, nil, func(s *StatusSnapshot) {
			s.ClampClosed = true
		})

	case CmdMovePlate:
		var a MovePlateArgs
		if err := decodeAndValidate(raw, &a); err != nil {
			return ResultInvalidArguments, err
		}
		return m.dispatch(ctx, name, map[string]any{"source": a.Source, "target": a.Target}, nil)

	case CmdStartMeasurement:
		var a StartMeasurementArgs
		if err := decodeAndValidate(raw, &a); err != nil {
			return ResultInvalidArguments, err
		}
		if _, merr := m.StartMeasurement(ctx, a); merr != nil {
			if errors.Is(merr, ErrNotConnected) {
				return ResultNotConnected, merr
			}
			return ResultGenericFailure, merr
		}
		return ResultSuccess, nil

	default:
		return ResultGenericFailure, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// dispatch sends one synchronous command to the adapter. The optimistic
// update, if non-nil, is applied to the cached snapshot on success so
// status queries before the next poll tick reflect the just-issued command.
func (m *Manager) dispatch(ctx context.Context, name string, args map[string]any, optimistic func(*StatusSnapshot)) (ResultCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.conn.Connected {
		return ResultNotConnected, ErrNotConnected
	}

	err := safeCall(func() error {
		_, err := m.adapter.SendCommand(ctx, name, args)
		return err
	})
	if err != nil {
		m.logger.Warn("command failed", "kind", m.kind, "command", name, "error", err)
		return ResultGenericFailure, fmt.Errorf("command %s: %w", name, err)
	}

	if optimistic != nil {
		optimistic(&m.snapshot)
	}
	m.logger.Debug("command dispatched", "kind", m.kind, "command", name)
	return ResultSuccess, nil
}

// StartMeasurement starts an asynchronous run and blocks until the monitor
// reaches a terminal state. The returned operation carries that state; on
// TimedOut or Cancelled the error distinguishes the outcome so callers can
// tell "device refused" from "device stopped responding".
//
// The manager lock is held only to start the run; the wait itself runs
// unlocked so polling and other commands continue during the measurement.
func (m *Manager) StartMeasurement(ctx context.Context, args StartMeasurementArgs) (*Operation, error) {
	op, events, err := m.beginMeasurement(ctx, args)
	if err != nil {
		return nil, err
	}
	return m.waitMeasurement(ctx, op, events, args)
}

// StartMeasurementAsync starts a run and returns immediately with the
// running operation; completion detection and persistence continue in the
// background. Callers observe the outcome via operation events or history.
// ctx should outlive the run (use context.WithoutCancel for request-scoped
// callers).
func (m *Manager) StartMeasurementAsync(ctx context.Context, args StartMeasurementArgs) (*Operation, error) {
	op, events, err := m.beginMeasurement(ctx, args)
	if err != nil {
		return nil, err
	}

	started := *op
	go func() {
		//nolint:errcheck // terminal state is reported via events and history
		m.waitMeasurement(ctx, op, events, args)
	}()
	return &started, nil
}

// beginMeasurement validates preconditions, starts the adapter run and
// registers the running operation. The manager lock is held only here.
func (m *Manager) beginMeasurement(ctx context.Context, args StartMeasurementArgs) (*Operation, <-chan ProgressEvent, error) {
	ma, ok := m.adapter.(MeasurementAdapter)
	if !ok {
		return nil, nil, ErrNotMeasurementCapable
	}

	m.mu.Lock()
	if !m.conn.Connected {
		m.mu.Unlock()
		return nil, nil, ErrNotConnected
	}
	if m.current != nil && !m.current.State.Terminal() {
		m.mu.Unlock()
		return nil, nil, ErrOperationInProgress
	}

	var events <-chan ProgressEvent
	err := safeCall(func() error {
		ch, err := ma.StartMeasurement(ctx, args.Script)
		if err != nil {
			return err
		}
		events = ch
		return nil
	})
	if err != nil {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("starting measurement: %w", err)
	}

	op := &Operation{
		ID:         uuid.NewString(),
		DeviceID:   m.conn.ConnectedDeviceID,
		Kind:       m.kind,
		Name:       CmdStartMeasurement,
		Parameters: args.audit(),
		StartedAt:  time.Now(),
		State:      OperationRunning,
	}
	m.current = op
	m.mu.Unlock()

	m.logger.Info("measurement started",
		"kind", m.kind, "operation_id", op.ID, "device_id", op.DeviceID)
	m.publisher.PublishOperation(*op)

	return op, events, nil
}

// waitMeasurement blocks until the monitor reaches a terminal state, then
// publishes and persists the outcome. Runs unlocked.
func (m *Manager) waitMeasurement(ctx context.Context, op *Operation, events <-chan ProgressEvent, args StartMeasurementArgs) (*Operation, error) {
	var onEvent func(ProgressEvent)
	if m.progressFunc != nil {
		snapshot := *op
		onEvent = func(ev ProgressEvent) { m.progressFunc(snapshot, ev) }
	}

	timeout := time.Duration(args.TimeoutSeconds) * time.Second
	state, points := m.monitor.Wait(ctx, events, timeout, onEvent)

	m.mu.Lock()
	op.State = state
	op.DataPoints = points
	op.FinishedAt = time.Now()
	result := *op
	m.mu.Unlock()

	m.logger.Info("measurement finished",
		"kind", m.kind, "operation_id", op.ID, "state", string(state), "data_points", points)
	m.publisher.PublishOperation(result)

	if m.history != nil {
		// Persist even when the caller's context is gone.
		if herr := m.history.Record(context.WithoutCancel(ctx), result); herr != nil {
			m.logger.Warn("recording operation failed", "operation_id", op.ID, "error", herr)
		}
	}

	switch state {
	case OperationTimedOut:
		return op, fmt.Errorf("%w: operation %s", ErrOperationTimeout, op.ID)
	case OperationCancelled:
		return op, fmt.Errorf("%w: operation %s", ErrOperationCancelled, op.ID)
	default:
		return op, nil
	}
}

// SetResultLocation records where the run's post-processed result was
// stored. Called by the owner of result files once the write completes.
func (m *Manager) SetResultLocation(ctx context.Context, operationID, location string) error {
	m.mu.Lock()
	if m.current != nil && m.current.ID == operationID {
		m.current.ResultLocation = location
	}
	m.mu.Unlock()

	if m.history != nil {
		return m.history.SetResultLocation(ctx, operationID, location)
	}
	return nil
}

// decodeAndValidate decodes raw JSON into a validatable argument struct.
func decodeAndValidate(raw json.RawMessage, v interface{ Validate() error }) error {
	if err := decodeArgs(raw, v); err != nil {
		return err
	}
	return v.Validate()
}

// safeCall runs one adapter call, converting a panic into ErrAdapterFault.
// Vendor drivers must never take the process down or leak raw faults past
// the dispatcher/poller boundary.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrAdapterFault, r)
		}
	}()
	return fn()
}

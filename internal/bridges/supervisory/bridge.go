// Package supervisory bridges instrument managers onto the supervisory
// MQTT network.
//
// The bridge subscribes to per-instrument command topics, dispatches
// commands through the owning manager, and publishes acknowledgements,
// discovery results, status snapshots and operation lifecycle events on the
// benchlink topic hierarchy.
package supervisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openbench/benchlink-core/internal/audit"
	"github.com/openbench/benchlink-core/internal/infrastructure/mqtt"
	"github.com/openbench/benchlink-core/internal/instrument"
)

// Logger is the minimal logging interface used by this package.
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

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Bridge routes supervisory commands to instrument managers and their
// outcomes back onto the network.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	client   MQTTClient
	managers map[instrument.Kind]*instrument.Manager
	topics   mqtt.Topics
	auditor  audit.Repository

	// Shutdown coordination
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// BridgeOptions holds the dependencies for a bridge.
type BridgeOptions struct {
	// Client is the MQTT connection. Required.
	Client MQTTClient

	// Managers are the instrument managers to expose. Required, one per kind.
	Managers []*instrument.Manager

	// Audit is optional; commands arriving over the supervisory link are
	// recorded when set.
	Audit audit.Repository

	// Logger is optional; a no-op logger is used when nil.
	Logger Logger
}

// NewBridge creates a supervisory bridge.
//
// Parameters:
//   - opts: Bridge dependencies
//
// Returns:
//   - *Bridge: Ready to start
//   - error: If required dependencies are missing
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("supervisory: MQTT client is required")
	}
	if len(opts.Managers) == 0 {
		return nil, fmt.Errorf("supervisory: at least one manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	managers := make(map[instrument.Kind]*instrument.Manager, len(opts.Managers))
	for _, m := range opts.Managers {
		managers[m.Kind()] = m
	}

	return &Bridge{
		client:   opts.Client,
		managers: managers,
		auditor:  opts.Audit,
		logger:   logger,
	}, nil
}

// Start subscribes to the command topic of every managed instrument.
//
// Parameters:
//   - ctx: Parent context; command dispatch stops when it is cancelled
//
// Returns:
//   - error: If any subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.ctxCancel = context.WithCancel(ctx)

	for kind, m := range b.managers {
		topic := b.topics.InstrumentCommand(string(kind))
		mgr := m
		if err := b.client.Subscribe(topic, 1, func(_ string, payload []byte) error {
			return b.handleCommand(mgr, payload)
		}); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		b.logger.Info("command subscription active", "kind", kind, "topic", topic)
	}

	return nil
}

// Stop cancels in-flight command dispatch. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.ctxCancel != nil {
			b.ctxCancel()
		}
	})
}

// handleCommand decodes and dispatches one supervisory command, then
// publishes the acknowledgement. Runs on the MQTT client's handler
// goroutine; measurement runs are detached so they never block it.
func (b *Bridge) handleCommand(m *instrument.Manager, payload []byte) error {
	var cmd instrument.CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decoding command message: %w", err)
	}
	if cmd.ID == "" || cmd.Command == "" {
		return fmt.Errorf("command message missing id or command")
	}

	kind := m.Kind()
	b.logger.Debug("command received",
		"kind", kind, "command", cmd.Command, "command_id", cmd.ID, "source", cmd.Source)

	if cmd.Command == instrument.CmdStartMeasurement {
		b.handleStartMeasurement(m, cmd)
		return nil
	}

	code, err := m.Invoke(b.ctx, cmd.Command, cmd.Args)
	ack := instrument.NewAckMessage(cmd.ID, kind, code, err)
	b.publishAck(kind, ack)
	b.auditCommand(m, cmd, map[string]any{"result": code.String()})

	// A successful discover changes the roster; push the new one.
	if cmd.Command == instrument.CmdDiscover && code == instrument.ResultSuccess {
		b.publishDiscovery(m)
	}
	return nil
}

// handleStartMeasurement starts a run without holding the handler: the ack
// carries the operation id, and the terminal state follows on the
// operation event topic.
func (b *Bridge) handleStartMeasurement(m *instrument.Manager, cmd instrument.CommandMessage) {
	kind := m.Kind()

	var args instrument.StartMeasurementArgs
	if len(cmd.Args) > 0 {
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			b.publishAck(kind, instrument.NewAckMessage(
				cmd.ID, kind, instrument.ResultInvalidArguments,
				fmt.Errorf("%w: %v", instrument.ErrInvalidArguments, err)))
			return
		}
	}
	if err := args.Validate(); err != nil {
		b.publishAck(kind, instrument.NewAckMessage(cmd.ID, kind, instrument.ResultInvalidArguments, err))
		return
	}

	op, err := m.StartMeasurementAsync(context.WithoutCancel(b.ctx), args)
	if err != nil {
		code := instrument.ResultGenericFailure
		if errors.Is(err, instrument.ErrNotConnected) {
			code = instrument.ResultNotConnected
		}
		b.publishAck(kind, instrument.NewAckMessage(cmd.ID, kind, code, err))
		return
	}

	ack := instrument.NewAckMessage(cmd.ID, kind, instrument.ResultSuccess, nil)
	ack.OperationID = op.ID
	b.publishAck(kind, ack)
	b.auditCommand(m, cmd, map[string]any{"operation_id": op.ID})
}

// auditCommand records a supervisory command dispatch (best-effort).
func (b *Bridge) auditCommand(m *instrument.Manager, cmd instrument.CommandMessage, details map[string]any) {
	if b.auditor == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["command"] = cmd.Command
	details["command_id"] = cmd.ID

	entry := &audit.Entry{
		Action:   "command",
		Kind:     string(m.Kind()),
		DeviceID: m.ConnectionState().ConnectedDeviceID,
		Source:   "mqtt",
		Details:  details,
	}
	if err := b.auditor.Create(context.Background(), entry); err != nil {
		b.logger.Warn("audit write failed", "command_id", cmd.ID, "error", err)
	}
}

// publishAck publishes a command acknowledgement (QoS 1, not retained).
func (b *Bridge) publishAck(kind instrument.Kind, ack instrument.AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("marshalling ack failed", "command_id", ack.CommandID, "error", err)
		return
	}
	if err := b.client.Publish(b.topics.InstrumentAck(string(kind)), payload, 1, false); err != nil {
		b.logger.Warn("publishing ack failed", "command_id", ack.CommandID, "error", err)
	}
}

// publishDiscovery publishes the manager's current roster (QoS 1, retained
// so late subscribers see the last scan).
func (b *Bridge) publishDiscovery(m *instrument.Manager) {
	kind := m.Kind()
	msg := instrument.DiscoveryMessage{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Devices:   m.Devices(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("marshalling discovery failed", "kind", kind, "error", err)
		return
	}
	if err := b.client.Publish(b.topics.InstrumentDiscovery(string(kind)), payload, 1, true); err != nil {
		b.logger.Warn("publishing discovery failed", "kind", kind, "error", err)
	}
}

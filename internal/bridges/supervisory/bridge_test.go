package supervisory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openbench/benchlink-core/internal/drivers/sim"
	"github.com/openbench/benchlink-core/internal/infrastructure/config"
	"github.com/openbench/benchlink-core/internal/infrastructure/mqtt"
	"github.com/openbench/benchlink-core/internal/instrument"
)

// ============================================================================
// Test Helpers
// ============================================================================

// mockMQTT implements MQTTClient, capturing publishes and subscriptions.
type mockMQTT struct {
	mu        sync.Mutex
	published []mockMessage
	handlers  map[string]mqtt.MessageHandler
}

type mockMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool { return true }

// deliver simulates an inbound message on a subscribed topic.
func (m *mockMQTT) deliver(t *testing.T, topic string, payload any) {
	t.Helper()
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for topic %q", topic)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshalling payload: %v", err)
	}
	if err := handler(topic, raw); err != nil {
		t.Fatalf("handler for %q returned error: %v", topic, err)
	}
}

// messagesOn returns all captured publishes for one topic.
func (m *mockMQTT) messagesOn(topic string) []mockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockMessage
	for _, msg := range m.published {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func testManagers() (*instrument.Manager, *instrument.Manager) {
	poll := config.PollConfig{Interval: 10, BackoffInterval: 500, FailureThreshold: 3}
	monitor := config.MonitorConfig{
		QuietAfterData: 200, QuietAfterVolume: 80, MinDataPoints: 10,
		CheckInterval: 5, DefaultTimeout: 2,
	}

	reader := instrument.NewManager(instrument.ManagerConfig{
		Kind: instrument.KindReader,
		Adapter: sim.NewReaderWithOptions(sim.ReaderOptions{
			Rows: 1, Cols: 4, EventInterval: time.Millisecond, EmitCompletionLabel: true,
		}),
		Poll:    poll,
		Monitor: monitor,
	})
	shaker := instrument.NewManager(instrument.ManagerConfig{
		Kind:    instrument.KindShaker,
		Adapter: sim.NewShaker(),
		Poll:    poll,
		Monitor: monitor,
	})
	return reader, shaker
}

func startBridge(t *testing.T) (*Bridge, *mockMQTT, *instrument.Manager, *instrument.Manager) {
	t.Helper()

	client := newMockMQTT()
	reader, shaker := testManagers()

	bridge, err := NewBridge(BridgeOptions{
		Client:   client,
		Managers: []*instrument.Manager{reader, shaker},
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(bridge.Stop)

	return bridge, client, reader, shaker
}

func lastAck(t *testing.T, client *mockMQTT, kind string) instrument.AckMessage {
	t.Helper()
	msgs := client.messagesOn("benchlink/ack/" + kind)
	if len(msgs) == 0 {
		t.Fatalf("no acks published for %s", kind)
	}
	var ack instrument.AckMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &ack); err != nil {
		t.Fatalf("unmarshalling ack: %v", err)
	}
	return ack
}

// ============================================================================
// Tests
// ============================================================================

func TestNewBridgeValidation(t *testing.T) {
	reader, _ := testManagers()

	if _, err := NewBridge(BridgeOptions{Managers: []*instrument.Manager{reader}}); err == nil {
		t.Error("NewBridge() without client should fail")
	}
	if _, err := NewBridge(BridgeOptions{Client: newMockMQTT()}); err == nil {
		t.Error("NewBridge() without managers should fail")
	}
}

func TestStartSubscribesPerKind(t *testing.T) {
	_, client, _, _ := startBridge(t)

	client.mu.Lock()
	defer client.mu.Unlock()
	for _, topic := range []string{"benchlink/command/reader", "benchlink/command/shaker"} {
		if _, ok := client.handlers[topic]; !ok {
			t.Errorf("missing subscription for %q", topic)
		}
	}
}

func TestCommandAckSuccess(t *testing.T) {
	_, client, _, _ := startBridge(t)

	client.deliver(t, "benchlink/command/shaker", instrument.CommandMessage{
		ID:      "cmd-1",
		Command: instrument.CmdDiscover,
	})

	ack := lastAck(t, client, "shaker")
	if ack.CommandID != "cmd-1" {
		t.Errorf("CommandID = %q, want cmd-1", ack.CommandID)
	}
	if ack.Result != instrument.ResultSuccess {
		t.Errorf("Result = %d, want %d", ack.Result, instrument.ResultSuccess)
	}
}

func TestDiscoverPublishesRoster(t *testing.T) {
	_, client, _, _ := startBridge(t)

	client.deliver(t, "benchlink/command/shaker", instrument.CommandMessage{
		ID:      "cmd-2",
		Command: instrument.CmdDiscover,
	})

	msgs := client.messagesOn("benchlink/discovery/shaker")
	if len(msgs) != 1 {
		t.Fatalf("discovery messages = %d, want 1", len(msgs))
	}
	if !msgs[0].retained {
		t.Error("discovery message should be retained")
	}

	var disco instrument.DiscoveryMessage
	if err := json.Unmarshal(msgs[0].payload, &disco); err != nil {
		t.Fatalf("unmarshalling discovery: %v", err)
	}
	if len(disco.Devices) != 2 {
		t.Errorf("Devices = %d, want 2", len(disco.Devices))
	}
}

func TestCommandAckNotConnected(t *testing.T) {
	_, client, _, _ := startBridge(t)

	client.deliver(t, "benchlink/command/shaker", instrument.CommandMessage{
		ID:      "cmd-3",
		Command: instrument.CmdCloseClamp,
	})

	ack := lastAck(t, client, "shaker")
	if ack.Result != instrument.ResultNotConnected {
		t.Errorf("Result = %d, want %d", ack.Result, instrument.ResultNotConnected)
	}
	if ack.Error == "" {
		t.Error("Error should be populated for a failed command")
	}
}

func TestCommandAckInvalidArguments(t *testing.T) {
	_, client, _, shaker := startBridge(t)

	if _, err := shaker.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if err := shaker.Connect(context.Background(), "TS-2400-0001"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.deliver(t, "benchlink/command/shaker", instrument.CommandMessage{
		ID:      "cmd-4",
		Command: instrument.CmdSetTemperature,
		Args:    json.RawMessage(`{"celsius":500}`),
	})

	ack := lastAck(t, client, "shaker")
	if ack.Result != instrument.ResultInvalidArguments {
		t.Errorf("Result = %d, want %d", ack.Result, instrument.ResultInvalidArguments)
	}
}

func TestMalformedCommandRejected(t *testing.T) {
	_, client, _, _ := startBridge(t)

	client.mu.Lock()
	handler := client.handlers["benchlink/command/shaker"]
	client.mu.Unlock()

	if err := handler("benchlink/command/shaker", []byte("{not json")); err == nil {
		t.Error("malformed payload should return an error")
	}
	if err := handler("benchlink/command/shaker", []byte(`{"command":"discover"}`)); err == nil ||
		!strings.Contains(err.Error(), "missing id") {
		t.Errorf("command without id: error = %v, want missing id", err)
	}
}

func TestStartMeasurementAckCarriesOperationID(t *testing.T) {
	_, client, reader, _ := startBridge(t)

	if _, err := reader.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if err := reader.Connect(context.Background(), "PR-3100-0042"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.deliver(t, "benchlink/command/reader", instrument.CommandMessage{
		ID:      "cmd-5",
		Command: instrument.CmdStartMeasurement,
		Args:    json.RawMessage(`{"script":"protocol-a","timeout_seconds":2}`),
	})

	ack := lastAck(t, client, "reader")
	if ack.Result != instrument.ResultSuccess {
		t.Fatalf("Result = %d, want %d (error: %s)", ack.Result, instrument.ResultSuccess, ack.Error)
	}
	if ack.OperationID == "" {
		t.Fatal("OperationID should be set")
	}

	// The run finishes in the background and emits a terminal event.
	deadline := time.Now().Add(3 * time.Second)
	for {
		op, ok := reader.CurrentOperation()
		if ok && op.State.Terminal() {
			if op.State != instrument.OperationCompleted {
				t.Errorf("State = %q, want %q", op.State, instrument.OperationCompleted)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("measurement did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartMeasurementMissingScript(t *testing.T) {
	_, client, reader, _ := startBridge(t)

	if _, err := reader.Discover(context.Background()); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if err := reader.Connect(context.Background(), "PR-3100-0042"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.deliver(t, "benchlink/command/reader", instrument.CommandMessage{
		ID:      "cmd-6",
		Command: instrument.CmdStartMeasurement,
	})

	ack := lastAck(t, client, "reader")
	if ack.Result != instrument.ResultInvalidArguments {
		t.Errorf("Result = %d, want %d", ack.Result, instrument.ResultInvalidArguments)
	}
}

// ============================================================================
// Publisher
// ============================================================================

func TestPublisherStatus(t *testing.T) {
	client := newMockMQTT()
	pub := NewPublisher(client, nil)

	pub.PublishStatus(instrument.KindShaker,
		instrument.ConnectionState{Connected: true, ConnectedDeviceID: "TS-2400-0001"},
		instrument.StatusSnapshot{Temperature: 37.2})

	msgs := client.messagesOn("benchlink/status/shaker")
	if len(msgs) != 1 {
		t.Fatalf("status messages = %d, want 1", len(msgs))
	}
	if !msgs[0].retained {
		t.Error("status message should be retained")
	}

	var status instrument.StatusMessage
	if err := json.Unmarshal(msgs[0].payload, &status); err != nil {
		t.Fatalf("unmarshalling status: %v", err)
	}
	if status.DeviceID != "TS-2400-0001" || status.Snapshot == nil {
		t.Errorf("status = %+v, want device and snapshot set", status)
	}
}

func TestPublisherOperation(t *testing.T) {
	client := newMockMQTT()
	pub := NewPublisher(client, nil)

	pub.PublishOperation(instrument.Operation{
		ID:       "op-1",
		DeviceID: "PR-3100-0042",
		Kind:     instrument.KindReader,
		Name:     instrument.CmdStartMeasurement,
		State:    instrument.OperationCompleted,
	})

	msgs := client.messagesOn("benchlink/operation/reader")
	if len(msgs) != 1 {
		t.Fatalf("operation messages = %d, want 1", len(msgs))
	}
	if msgs[0].retained {
		t.Error("operation events should not be retained")
	}

	var ev instrument.OperationMessage
	if err := json.Unmarshal(msgs[0].payload, &ev); err != nil {
		t.Fatalf("unmarshalling operation event: %v", err)
	}
	if ev.OperationID != "op-1" || ev.State != instrument.OperationCompleted {
		t.Errorf("event = %+v", ev)
	}
}

//go:build integration

package mqtt

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

// Broker-dependent behaviours that go beyond the plain pub/sub coverage in
// client_test.go: retained delivery to late subscribers, QoS 2, and handler
// failure logging. Requires Mosquitto at 127.0.0.1:1883.
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func integrationClient(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// A retained status message must reach a subscriber that connects after it
// was published. This is the mechanism late-joining supervisors rely on for
// current instrument state.
func TestIntegration_RetainedStatusSurvivesForLateSubscriber(t *testing.T) {
	const topic = "benchlink/int/retained-status"
	const payload = `{"connected":true,"device_id":"PR-0001"}`

	pub := integrationClient(t, "benchlink-int-retain-pub")
	if err := pub.PublishRetained(topic, []byte(payload)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	sub := integrationClient(t, "benchlink-int-retain-sub")
	received := make(chan string, 1)
	err := sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		select {
		case received <- string(p):
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case got := <-received:
		if got != payload {
			t.Errorf("retained payload = %q, want %q", got, payload)
		}
	case <-time.After(5 * time.Second):
		t.Error("late subscriber never received the retained message")
	}

	// Clear the retained message so reruns start clean.
	if err := pub.Publish(topic, nil, 1, true); err != nil {
		t.Errorf("clearing retained message: %v", err)
	}
}

func TestIntegration_QoS2Delivery(t *testing.T) {
	pub := integrationClient(t, "benchlink-int-qos2-pub")
	sub := integrationClient(t, "benchlink-int-qos2-sub")

	const topic = "benchlink/int/qos2"
	received := make(chan []byte, 1)

	err := sub.Subscribe(topic, 2, func(_ string, p []byte) error {
		received <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, []byte("exactly-once"), 2, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case p := <-received:
		if string(p) != "exactly-once" {
			t.Errorf("payload = %q, want %q", p, "exactly-once")
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for QoS 2 message")
	}
}

// Handler errors surface through the client's Logger rather than breaking
// message delivery.
func TestIntegration_HandlerErrorIsLogged(t *testing.T) {
	client := integrationClient(t, "benchlink-int-handler-log")

	logger := &captureLogger{}
	client.SetLogger(logger)

	const topic = "benchlink/int/handler-log"
	delivered := make(chan struct{}, 1)
	err := client.Subscribe(topic, 1, func(string, []byte) error {
		delivered <- struct{}{}
		return errTestHandler
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := client.PublishString(topic, "x", 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was never called")
	}
	time.Sleep(50 * time.Millisecond)

	if !logger.sawWarnContaining("handler returned error") {
		t.Errorf("expected a warn log for the failing handler, got %v", logger.snapshot())
	}

	// SetLogger(nil) silences the client without affecting delivery.
	client.SetLogger(nil)
	if got := client.getLogger(); got != nil {
		t.Error("getLogger() != nil after SetLogger(nil)")
	}
}

var errTestHandler = &handlerTestError{}

type handlerTestError struct{}

func (*handlerTestError) Error() string { return "handler test error" }

// captureLogger records Warn and Error lines for assertions.
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Error(msg string, _ ...any) { l.record("ERROR " + msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.record("WARN " + msg) }

func (l *captureLogger) record(line string) {
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
}

func (l *captureLogger) sawWarnContaining(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.HasPrefix(line, "WARN ") && strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (l *captureLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

package instrument

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthReporter publishes periodic health status for one instrument manager.
type HealthReporter struct {
	kind      Kind
	version   string
	topic     string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	state     StateSource
	registry  *Registry

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// StateSource exposes the connection view a health reporter needs.
// Implemented by Manager.
type StateSource interface {
	ConnectionState() ConnectionState
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Kind is the instrument family the reporter covers.
	Kind Kind

	// Version is the core software version.
	Version string

	// Topic is the MQTT topic to publish on.
	Topic string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// State provides the manager's connection view.
	State StateSource

	// Registry provides the known-device count.
	Registry *Registry

	// Logger is optional; a no-op logger is used when nil.
	Logger Logger
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &HealthReporter{
		kind:      cfg.Kind,
		version:   cfg.Version,
		topic:     cfg.Topic,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		state:     cfg.State,
		registry:  cfg.Registry,
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Start begins periodic health reporting.
// Must be called after creation. Call Stop to shut down.
//
// Parameters:
//   - ctx: Context for cancellation (will stop reporting when cancelled)
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Final stopping status (best-effort, ignore errors)
		//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
// Called during core initialization.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "manager starting")
}

// PublishNow publishes the current health status immediately.
// Useful for forcing an update after a significant event.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// GetLWTPayload returns the Last Will and Testament message payload.
// This should be set as the MQTT will message during connection.
func (h *HealthReporter) GetLWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.kind))
}

// GetLWTTopic returns the topic for the Last Will and Testament.
func (h *HealthReporter) GetLWTTopic() string {
	return h.topic
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Publish initial status
	if err := h.PublishNow(); err != nil {
		h.logger.Warn("failed to publish initial health", "kind", h.kind, "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("failed to publish health", "kind", h.kind, "error", err)
			}
		}
	}
}

// determineStatus evaluates the current manager status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "supervisory link down"
	}

	if h.state != nil {
		conn := h.state.ConnectionState()
		if !conn.Connected {
			return HealthDegraded, "no instrument connected"
		}
		if conn.BackoffActive {
			return HealthDegraded, "instrument polling backed off"
		}
	}

	return HealthHealthy, ""
}

// publishStatus publishes a health status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil // No publisher configured
	}

	msg := HealthMessage{
		Kind:          h.kind,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}

	if h.state != nil {
		conn := h.state.ConnectionState()
		msg.Connection = &ConnectionReport{
			Connected:           conn.Connected,
			DeviceID:            conn.ConnectedDeviceID,
			BackoffActive:       conn.BackoffActive,
			ConsecutiveFailures: conn.ConsecutiveFailures,
		}
	}
	if h.registry != nil {
		msg.DevicesKnown = h.registry.Count()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// QoS 1, retained so late subscribers see the last known status
	return h.publisher.Publish(h.topic, payload, 1, true)
}

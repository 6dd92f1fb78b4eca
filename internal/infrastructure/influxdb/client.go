package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/openbench/benchlink-core/internal/infrastructure/config"
)

const (
	connectPingTimeout = 10 * time.Second
	healthPingTimeout  = 5 * time.Second

	// Batching defaults applied when the config leaves them unset.
	defaultBatchSize       = 100
	defaultFlushIntervalMS = 10_000
)

// Client records instrument telemetry to an InfluxDB v2 bucket.
//
// Writes go through the non-blocking batched WriteAPI, so callers on the
// polling path never wait on the network. Failed batches surface through
// the SetOnError callback.
//
// All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect creates a client for the configured InfluxDB server and verifies
// it is reachable with a ping before returning.
//
// Parameters:
//   - cfg: InfluxDB section of the service configuration
//
// Returns:
//   - *Client: Ready-to-use client with batching configured
//   - error: ErrDisabled when the integration is off, ErrConnectionFailed
//     when the server cannot be reached or reports unhealthy
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, batchOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectPingTimeout)
	defer cancel()

	healthy, err := raw.Ping(ctx)
	switch {
	case err != nil:
		raw.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	case !healthy:
		raw.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    raw,
		writeAPI:  raw.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	go c.consumeWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// batchOptions translates the config's batch settings into client options,
// falling back to defaults for zero or negative values. FlushInterval is
// configured in seconds; the client API wants milliseconds.
func batchOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := uint(defaultFlushIntervalMS)
	if cfg.FlushInterval > 0 {
		flush = uint(cfg.FlushInterval) * 1000
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(flush)
}

// consumeWriteErrors forwards async batch-write failures to the registered
// callback. Runs until the WriteAPI's error channel closes on shutdown.
func (c *Client) consumeWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		notify := c.onError
		c.mu.RUnlock()

		if notify != nil {
			notify(err)
		}
	}
}

// Close flushes pending points and shuts down the underlying client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()

	return nil
}

// HealthCheck pings the server and reports whether it is responsive.
//
// Parameters:
//   - ctx: Bounds the ping; a shorter internal timeout also applies
//
// Returns:
//   - error: nil when healthy, ErrNotConnected after Close, or the
//     ping failure otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	return nil
}

// IsConnected reports the last known connection state. It does not probe
// the server; use HealthCheck for an active check.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers a callback for asynchronous write failures. Writes
// are batched, so errors arrive after the originating call has returned.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until all buffered points have been sent. No-op once the
// client is closed.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteInstrumentMetric writes a single instrument measurement to InfluxDB.
//
// This is the primary method for recording instrument telemetry captured by
// the status pollers. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - kind: The instrument kind (e.g., "reader", "shaker", "robot")
//   - deviceID: The connected device's identifier (serial or slot id)
//   - measurement: The metric name (e.g., "temperature_c", "shaking_rpm")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteInstrumentMetric("shaker", "THS-0042", "temperature_c", 37.1)
//	client.WriteInstrumentMetric("shaker", "THS-0042", "shaking_rpm", 600)
func (c *Client) WriteInstrumentMetric(kind, deviceID, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"instrument_metrics",
		map[string]string{
			"instrument":  kind,
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMeasurementProgress writes a plate-measurement progress sample.
//
// Used for tracking run advancement (cycle counters, per-well values) so a
// run can be audited after the fact.
//
// Parameters:
//   - deviceID: The reader's device identifier
//   - operationID: The operation this progress belongs to
//   - cycleCurrent: Current measurement cycle
//   - cycleTotal: Total planned cycles (0 if unknown)
//   - value: The measured value, if the event carried one
func (c *Client) WriteMeasurementProgress(deviceID, operationID string, cycleCurrent, cycleTotal int, value float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"cycle_current": cycleCurrent,
		"value":         value,
	}
	// Only include cycle_total when the run declared one
	if cycleTotal > 0 {
		fields["cycle_total"] = cycleTotal
	}

	point := write.NewPoint(
		"measurement_progress",
		map[string]string{
			"device_id":    deviceID,
			"operation_id": operationID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("poller_stats",
//	    map[string]string{"instrument": "reader"},
//	    map[string]interface{}{"consecutive_failures": 2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

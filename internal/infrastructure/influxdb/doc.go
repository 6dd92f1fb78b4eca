// Package influxdb records instrument telemetry in an InfluxDB v2 bucket.
//
// The pollers feed it temperature and RPM samples, and the measurement
// monitor feeds it per-cycle progress, so a run can be replayed after the
// fact. The integration is optional; when disabled in configuration,
// Connect returns ErrDisabled and the caller runs without telemetry.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without a telemetry sink
//	}
//
//	client.WriteInstrumentMetric("shaker", "THS-0042", "temperature_c", 37.1)
//
// Writes are batched and asynchronous; batch failures are reported through
// the SetOnError callback rather than returned to the writer.
package influxdb

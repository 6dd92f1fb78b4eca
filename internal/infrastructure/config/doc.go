// Package config provides configuration loading for BenchLink Core.
//
// Configuration is loaded in three layers, each overriding the last:
//
//  1. Hardcoded defaults (defaultConfig)
//  2. YAML file values (config.yaml)
//  3. Environment variables (BENCHLINK_SECTION_KEY)
//
// # Structure
//
// The root Config mirrors the sections of config.yaml:
//
//	site:          # laboratory site identity
//	database:      # SQLite settings
//	mqtt:          # broker connection and reconnect tuning
//	api:           # HTTP API listener
//	influxdb:      # optional telemetry sink
//	logging:       # level, format, output
//	instruments:   # per-instrument adapters, poller and monitor tuning
//
// # Instrument tuning
//
// The instruments section carries the knobs that govern the equipment
// synchronization core: the status poller's normal and backoff cadence,
// the failure threshold that triggers backoff, and the measurement
// monitor's completion-detection thresholds. These are configuration
// because they are empirical per instrument family, not protocol
// constants.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interval := cfg.Instruments.Poll.GetPollInterval()
package config

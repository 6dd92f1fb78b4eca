// Package sim provides in-process simulated instrument adapters.
//
// Each simulator implements instrument.Adapter (the Reader additionally
// implements instrument.MeasurementAdapter) against a small physical model:
// temperatures ramp toward their setpoint, shaking spins up and coasts down,
// and measurement runs emit a synthetic per-well progress stream. The
// simulators back dev mode and integration tests so the core can run with
// no hardware attached.
//
// State stepping is lazy: each ReadStatus advances the model by the wall
// time elapsed since the previous read, so a simulator costs nothing
// between polls.
package sim

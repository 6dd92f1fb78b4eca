// Package instrument implements the equipment synchronisation and command
// dispatch core shared by every BenchLink device integration.
//
// One Manager instance owns a single physical instrument connection (a plate
// reader, a thermoshaker or a liquid-handling robot) through a vendor
// DeviceAdapter, and provides:
//
//   - Discovery and an atomically-swapped device registry
//   - A connection state machine (connect by serial or slot, disconnect-first
//     when switching devices, idempotent reconnects)
//   - A status poller with adaptive backoff under repeated failure
//   - A serialised command dispatcher with a uniform result-code contract
//   - Completion detection for long-running measurement runs, inferred from
//     a progress-event stream rather than an explicit done signal
//
// # Concurrency
//
// All mutable state (connection state, cached status snapshot, the current
// operation) is guarded by one mutex per Manager. Adapter calls are
// serialised under that mutex because vendor drivers are generally not
// reentrant and serial/USB channels are single-consumer. The measurement
// monitor's wait loop is the exception: it runs outside the lock so that
// polling and other commands are not starved for the duration of a run.
//
// # Usage
//
//	mgr := instrument.NewManager(instrument.ManagerConfig{
//	    Kind:    instrument.KindShaker,
//	    Adapter: adapter,
//	    Poll:    cfg.Instruments.Poll,
//	    Monitor: cfg.Instruments.Monitor,
//	})
//
//	count, err := mgr.Discover(ctx)
//	code, err := mgr.Invoke(ctx, "connect", json.RawMessage(`{"device_id":"SN-1042"}`))
package instrument

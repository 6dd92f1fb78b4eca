package influxdb

import "errors"

// Sentinel errors, matchable with errors.Is.
var (
	// ErrNotConnected is returned once the client has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps ping failures during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed marks a failed write. Batched write errors normally
	// arrive through the SetOnError callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled is returned by Connect when the integration is turned
	// off in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)

package influxdb

import "errors"

// Sentinel errors, matched with errors.Is.
var (
	// ErrNotConnected means the client was never connected or has been
	// closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps the cause of a failed initial connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means the metrics sink is switched off in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)

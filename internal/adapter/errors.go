package adapter

import "errors"

// Domain errors for the adapter package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, adapter.ErrInvalidCommand) {
//	    // handle malformed invocation
//	}
var (
	// ErrInvalidCommand is returned when a command invocation is malformed:
	// missing device identifier or an operation outside the supported set.
	ErrInvalidCommand = errors.New("adapter: invalid command")

	// ErrMissingDevice is returned when a DeviceContext lacks a device ID.
	ErrMissingDevice = errors.New("adapter: missing device identifier")

	// ErrDeviceUnreachable is returned when the device does not respond
	// within the operation's bound.
	ErrDeviceUnreachable = errors.New("adapter: device unreachable")

	// ErrUnsupportedOperation is returned when a vendor integration does
	// not implement the requested operation.
	ErrUnsupportedOperation = errors.New("adapter: operation not supported")
)

package event

import "errors"

// Domain errors for the event package.
var (
	// ErrMissingDeviceID is returned when a submission carries no device
	// identifier in the request path.
	ErrMissingDeviceID = errors.New("event: device id required")

	// ErrMissingEventType is returned when a raw event has no type.
	ErrMissingEventType = errors.New("event: event type required")

	// ErrDuplicate signals that an insert hit the idempotency unique
	// index. Internal to the pipeline: callers see a duplicate Receipt,
	// never this error.
	ErrDuplicate = errors.New("event: duplicate idempotency key")

	// ErrNotFound is returned when an event ID does not exist.
	ErrNotFound = errors.New("event: not found")
)

package adapter

import (
	"context"
	"time"
)

// DeviceAdapter is the contract every vendor integration satisfies.
//
// All operations take a DeviceContext carrying identity plus connection
// configuration, never a bare device ID, so an adapter never has to
// re-resolve configuration mid-call. Operations return explicit errors
// for malformed invocation or transport failure; a command the device
// legitimately rejected is reported through CommandResult.Success, not
// an error.
type DeviceAdapter interface {
	// Type returns the vendor type this adapter implements.
	Type() Type

	// Discover enumerates reachable devices. Used operationally and as
	// the basis of factory health probes.
	Discover(ctx context.Context) ([]DeviceInfo, error)

	// GetDeviceInfo returns the identity snapshot for the device.
	GetDeviceInfo(ctx context.Context, dev DeviceContext) (DeviceInfo, error)

	// GetConfiguration reads device-local settings.
	GetConfiguration(ctx context.Context, dev DeviceContext) (DeviceConfiguration, error)

	// UpdateConfiguration applies a partial settings update.
	// Keys absent from the partial map are left untouched.
	UpdateConfiguration(ctx context.Context, dev DeviceContext, partial DeviceConfiguration) error

	// SendCommand executes a command against the device.
	// Returns ErrInvalidCommand if dev lacks a device identifier or the
	// operation is outside the supported set.
	SendCommand(ctx context.Context, dev DeviceContext, cmd Command) (CommandResult, error)

	// GetHealth returns a point-in-time health reading with derived issues.
	GetHealth(ctx context.Context, dev DeviceContext) (DeviceHealth, error)

	// SubscribeEvents registers a push-event callback for the device.
	// Subscribing twice for the same device replaces the previous
	// callback; callbacks never stack.
	SubscribeEvents(ctx context.Context, dev DeviceContext, cb EventCallback) error

	// UnsubscribeEvents removes the callback for the device.
	// Idempotent: unsubscribing a device with no subscription is not an error.
	UnsubscribeEvents(ctx context.Context, dev DeviceContext) error

	// SyncUsers provisions authorised credential holders onto the device.
	SyncUsers(ctx context.Context, dev DeviceContext, users []DeviceUser) error

	// RemoveUser deprovisions a single credential holder from the device.
	RemoveUser(ctx context.Context, dev DeviceContext, userID string) error

	// TestConnection reports whether the device is reachable.
	TestConnection(ctx context.Context, dev DeviceContext) (bool, error)

	// Reboot restarts the device.
	Reboot(ctx context.Context, dev DeviceContext) error

	// UpdateFirmware instructs the device to fetch and apply firmware
	// from the given URL.
	UpdateFirmware(ctx context.Context, dev DeviceContext, url string) (FirmwareResult, error)

	// GetLogs returns device log lines, optionally bounded by time.
	// Nil bounds mean unbounded on that side.
	GetLogs(ctx context.Context, dev DeviceContext, start, end *time.Time) ([]string, error)

	// ClearLogs wipes the device's local log store.
	ClearLogs(ctx context.Context, dev DeviceContext) error
}

// Package device provides the device registry for Passage Core.
//
// The registry is the catalogue of physical access hardware known to
// the platform: card readers, biometric scanners, door controllers.
// It owns connection configuration (host, credentials, per-device
// webhook secret) and reachability state, and builds the operation
// contexts handed into adapter calls.
//
// Devices are never hard-deleted. Decommissioning marks a device
// offline so historical events remain attributable to their source.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev, err := registry.GetDevice(ctx, "dev-entrance-01")
//	if err != nil {
//	    return err
//	}
//	result, err := a.SendCommand(ctx, dev.AdapterContext(), cmd)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected
// by a read-write mutex. The Repository implementation must also be
// thread-safe.
package device

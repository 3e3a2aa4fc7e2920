// Package stub provides a deterministic in-memory adapter used when no
// real vendor integration is available or healthy. It implements the
// full DeviceAdapter contract against a simulated pair of devices so
// the rest of the platform can run, be demonstrated, and be tested
// without hardware.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/draymont/passage-core/internal/adapter"
)

// Simulated health readings. Chosen to sit below every elevated
// threshold so the stub always reports clean.
const (
	simUptimeSeconds = 86400
	simCPUPercent    = 12.5
	simMemoryPercent = 34.0
	simTempCelsius   = 41.0
)

// Adapter is the deterministic fallback implementation.
//
// Discovery always succeeds and returns the same two simulated devices.
// Commands succeed for every operation in the supported set. State that
// a real device would hold (configuration, provisioned users, logs) is
// kept in memory per device ID.
type Adapter struct {
	mu       sync.RWMutex
	configs  map[string]adapter.DeviceConfiguration
	users    map[string]map[string]adapter.DeviceUser
	logs     map[string][]string
	subs     map[string]adapter.EventCallback
	bootTime time.Time
}

// New creates a stub adapter with empty simulated state.
func New() *Adapter {
	return &Adapter{
		configs:  make(map[string]adapter.DeviceConfiguration),
		users:    make(map[string]map[string]adapter.DeviceUser),
		logs:     make(map[string][]string),
		subs:     make(map[string]adapter.EventCallback),
		bootTime: time.Now().UTC(),
	}
}

// Type returns adapter.TypeStub.
func (a *Adapter) Type() adapter.Type {
	return adapter.TypeStub
}

// Discover returns the fixed simulated device pair. Never fails.
func (a *Adapter) Discover(_ context.Context) ([]adapter.DeviceInfo, error) {
	now := time.Now().UTC()
	return []adapter.DeviceInfo{
		{
			ID:              "stub-entrance-01",
			Name:            "Simulated Entrance Reader",
			Vendor:          "passage",
			Model:           "SIM-100",
			FirmwareVersion: "1.0.0",
			Host:            "127.0.0.1",
			MACAddress:      "02:00:00:00:00:01",
			Status:          adapter.DeviceStatusOnline,
			LastSeen:        now,
			Capabilities: []adapter.Capability{
				{Type: adapter.CapabilityCardReader, Enabled: true},
				{Type: adapter.CapabilityQRScanner, Enabled: true},
				{Type: adapter.CapabilityDoorRelay, Enabled: true},
			},
		},
		{
			ID:              "stub-turnstile-01",
			Name:            "Simulated Lobby Turnstile",
			Vendor:          "passage",
			Model:           "SIM-200",
			FirmwareVersion: "1.0.0",
			Host:            "127.0.0.1",
			MACAddress:      "02:00:00:00:00:02",
			Status:          adapter.DeviceStatusOnline,
			LastSeen:        now,
			Capabilities: []adapter.Capability{
				{Type: adapter.CapabilityCardReader, Enabled: true},
				{Type: adapter.CapabilityFace, Enabled: true},
				{Type: adapter.CapabilityDoorRelay, Enabled: true},
			},
		},
	}, nil
}

// GetDeviceInfo returns a snapshot for the device in the context.
func (a *Adapter) GetDeviceInfo(_ context.Context, dev adapter.DeviceContext) (adapter.DeviceInfo, error) {
	if dev.DeviceID == "" {
		return adapter.DeviceInfo{}, adapter.ErrMissingDevice
	}
	return adapter.DeviceInfo{
		ID:              dev.DeviceID,
		Name:            "Simulated Device " + dev.DeviceID,
		Vendor:          "passage",
		Model:           "SIM-100",
		FirmwareVersion: "1.0.0",
		Host:            dev.Host,
		Status:          adapter.DeviceStatusOnline,
		LastSeen:        time.Now().UTC(),
		Capabilities: []adapter.Capability{
			{Type: adapter.CapabilityCardReader, Enabled: true},
			{Type: adapter.CapabilityDoorRelay, Enabled: true},
		},
	}, nil
}

// GetConfiguration returns the stored configuration for the device,
// or an empty map if nothing has been written yet.
func (a *Adapter) GetConfiguration(_ context.Context, dev adapter.DeviceContext) (adapter.DeviceConfiguration, error) {
	if dev.DeviceID == "" {
		return nil, adapter.ErrMissingDevice
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	cfg := make(adapter.DeviceConfiguration)
	for k, v := range a.configs[dev.DeviceID] {
		cfg[k] = v
	}
	return cfg, nil
}

// UpdateConfiguration merges the partial update into stored configuration.
func (a *Adapter) UpdateConfiguration(_ context.Context, dev adapter.DeviceContext, partial adapter.DeviceConfiguration) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cfg, ok := a.configs[dev.DeviceID]
	if !ok {
		cfg = make(adapter.DeviceConfiguration)
		a.configs[dev.DeviceID] = cfg
	}
	for k, v := range partial {
		cfg[k] = v
	}
	return nil
}

// SendCommand executes a simulated command. Every operation in the
// supported set succeeds; malformed invocations return ErrInvalidCommand.
func (a *Adapter) SendCommand(_ context.Context, dev adapter.DeviceContext, cmd adapter.Command) (adapter.CommandResult, error) {
	if dev.DeviceID == "" {
		return adapter.CommandResult{}, fmt.Errorf("%w: missing device identifier", adapter.ErrInvalidCommand)
	}
	if !cmd.Operation.IsValid() {
		return adapter.CommandResult{}, fmt.Errorf("%w: unknown operation %q", adapter.ErrInvalidCommand, cmd.Operation)
	}

	a.appendLog(dev.DeviceID, fmt.Sprintf("command %s executed", cmd.Operation))

	return adapter.CommandResult{
		Success:    true,
		Message:    fmt.Sprintf("simulated %s completed", cmd.Operation),
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// GetHealth returns fixed nominal readings with issues derived from
// the shared thresholds.
func (a *Adapter) GetHealth(_ context.Context, dev adapter.DeviceContext) (adapter.DeviceHealth, error) {
	if dev.DeviceID == "" {
		return adapter.DeviceHealth{}, adapter.ErrMissingDevice
	}

	h := adapter.DeviceHealth{
		Status:        adapter.DeviceStatusOnline,
		UptimeSeconds: simUptimeSeconds + int64(time.Since(a.bootTime).Seconds()),
		CPUPercent:    simCPUPercent,
		MemoryPercent: simMemoryPercent,
		TempCelsius:   simTempCelsius,
		CheckedAt:     time.Now().UTC(),
	}
	h.ClassifyIssues()
	return h, nil
}

// SubscribeEvents registers the callback for the device. A second
// subscription for the same device replaces the first.
func (a *Adapter) SubscribeEvents(_ context.Context, dev adapter.DeviceContext, cb adapter.EventCallback) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	a.mu.Lock()
	a.subs[dev.DeviceID] = cb
	a.mu.Unlock()
	return nil
}

// UnsubscribeEvents removes the callback for the device. Idempotent.
func (a *Adapter) UnsubscribeEvents(_ context.Context, dev adapter.DeviceContext) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	a.mu.Lock()
	delete(a.subs, dev.DeviceID)
	a.mu.Unlock()
	return nil
}

// Emit delivers a simulated event to the device's subscribed callback,
// if any. Used by tests and demo tooling to drive the pipeline without
// hardware. Returns true if a callback received the event.
func (a *Adapter) Emit(ev adapter.Event) bool {
	a.mu.RLock()
	cb := a.subs[ev.DeviceID]
	a.mu.RUnlock()

	if cb == nil {
		return false
	}
	cb(ev)
	return true
}

// SyncUsers stores the provisioned users for the device.
func (a *Adapter) SyncUsers(_ context.Context, dev adapter.DeviceContext, users []adapter.DeviceUser) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	stored, ok := a.users[dev.DeviceID]
	if !ok {
		stored = make(map[string]adapter.DeviceUser)
		a.users[dev.DeviceID] = stored
	}
	for _, u := range users {
		stored[u.UserID] = u
	}
	return nil
}

// RemoveUser deletes a provisioned user from the device. Removing an
// unknown user is not an error, matching how real controllers behave.
func (a *Adapter) RemoveUser(_ context.Context, dev adapter.DeviceContext, userID string) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	a.mu.Lock()
	if stored, ok := a.users[dev.DeviceID]; ok {
		delete(stored, userID)
	}
	a.mu.Unlock()
	return nil
}

// UserCount returns how many users are provisioned on a simulated device.
func (a *Adapter) UserCount(deviceID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users[deviceID])
}

// TestConnection always succeeds for the stub.
func (a *Adapter) TestConnection(_ context.Context, dev adapter.DeviceContext) (bool, error) {
	if dev.DeviceID == "" {
		return false, adapter.ErrMissingDevice
	}
	return true, nil
}

// Reboot resets the simulated uptime baseline.
func (a *Adapter) Reboot(_ context.Context, dev adapter.DeviceContext) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	a.mu.Lock()
	a.bootTime = time.Now().UTC()
	a.mu.Unlock()

	a.appendLog(dev.DeviceID, "device rebooted")
	return nil
}

// UpdateFirmware simulates a successful firmware update.
func (a *Adapter) UpdateFirmware(_ context.Context, dev adapter.DeviceContext, url string) (adapter.FirmwareResult, error) {
	if dev.DeviceID == "" {
		return adapter.FirmwareResult{}, adapter.ErrMissingDevice
	}

	a.appendLog(dev.DeviceID, "firmware updated from "+url)
	return adapter.FirmwareResult{
		Success: true,
		Message: "simulated firmware update applied",
	}, nil
}

// GetLogs returns accumulated simulated log lines for the device.
// The stub does not timestamp its lines, so the time bounds are ignored.
func (a *Adapter) GetLogs(_ context.Context, dev adapter.DeviceContext, _, _ *time.Time) ([]string, error) {
	if dev.DeviceID == "" {
		return nil, adapter.ErrMissingDevice
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	lines := make([]string, len(a.logs[dev.DeviceID]))
	copy(lines, a.logs[dev.DeviceID])
	return lines, nil
}

// ClearLogs wipes the simulated log store for the device.
func (a *Adapter) ClearLogs(_ context.Context, dev adapter.DeviceContext) error {
	if dev.DeviceID == "" {
		return adapter.ErrMissingDevice
	}

	a.mu.Lock()
	delete(a.logs, dev.DeviceID)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) appendLog(deviceID, line string) {
	a.mu.Lock()
	a.logs[deviceID] = append(a.logs[deviceID], line)
	a.mu.Unlock()
}

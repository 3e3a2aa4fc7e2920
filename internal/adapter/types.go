package adapter

import "time"

// Type identifies a vendor integration.
type Type string

// Supported adapter types.
const (
	TypeHikvision Type = "hikvision"
	TypeZKTeco    Type = "zkteco"
	TypeSuprema   Type = "suprema"
	TypeStub      Type = "stub"
)

// AllTypes returns all valid adapter type values.
func AllTypes() []Type {
	return []Type{TypeHikvision, TypeZKTeco, TypeSuprema, TypeStub}
}

// IsValid reports whether t is a known adapter type.
func (t Type) IsValid() bool {
	switch t {
	case TypeHikvision, TypeZKTeco, TypeSuprema, TypeStub:
		return true
	}
	return false
}

// DeviceContext carries device identity and connection configuration into
// every adapter call. Adapters never re-resolve configuration mid-call;
// whoever constructs the context is responsible for loading it.
type DeviceContext struct {
	DeviceID string `json:"device_id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Extra holds vendor-specific connection settings (TLS options,
	// channel numbers, API key names) that don't warrant first-class fields.
	Extra map[string]any `json:"extra,omitempty"`
}

// DeviceStatus represents the reachability state of a physical device.
type DeviceStatus string

// DeviceStatus constants.
const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusError   DeviceStatus = "error"
	DeviceStatusUnknown DeviceStatus = "unknown"
)

// Capability describes a single feature a device supports.
type Capability struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// Capability type names reported by adapters.
const (
	CapabilityCardReader  = "card_reader"
	CapabilityFingerprint = "fingerprint"
	CapabilityFace        = "face_recognition"
	CapabilityQRScanner   = "qr_scanner"
	CapabilityDoorRelay   = "door_relay"
	CapabilityTamperAlarm = "tamper_alarm"
)

// DeviceInfo is an identity and capability snapshot of a physical device.
// Created at discovery time and refreshed by health checks and command
// results; devices are never deleted from the platform, only marked offline.
type DeviceInfo struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Vendor          string       `json:"vendor"`
	Model           string       `json:"model"`
	FirmwareVersion string       `json:"firmware_version"`
	Host            string       `json:"host"`
	MACAddress      string       `json:"mac_address"`
	Status          DeviceStatus `json:"status"`
	LastSeen        time.Time    `json:"last_seen"`
	Capabilities    []Capability `json:"capabilities"`
}

// CommandOperation is the closed set of operations a device can be asked
// to perform. Adapters reject anything outside this set as malformed.
type CommandOperation string

// Command operations.
const (
	OpUnlockDoor       CommandOperation = "unlock_door"
	OpLockDoor         CommandOperation = "lock_door"
	OpReboot           CommandOperation = "reboot"
	OpSyncUsers        CommandOperation = "sync_users"
	OpUpdateFirmware   CommandOperation = "update_firmware"
	OpConfigureWebhook CommandOperation = "configure_webhook"
	OpGetStatus        CommandOperation = "get_status"
	OpClearAlarms      CommandOperation = "clear_alarms"
)

// IsValid reports whether op is a recognised command operation.
func (op CommandOperation) IsValid() bool {
	switch op {
	case OpUnlockDoor, OpLockDoor, OpReboot, OpSyncUsers,
		OpUpdateFirmware, OpConfigureWebhook, OpGetStatus, OpClearAlarms:
		return true
	}
	return false
}

// Command is a request/response instruction to a device.
// Commands are not persisted beyond logging.
type Command struct {
	Operation  CommandOperation `json:"operation"`
	Parameters map[string]any   `json:"parameters,omitempty"`

	// Timeout bounds the device round-trip. Zero means the adapter default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CommandResult reports the outcome of a Command.
type CommandResult struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
}

// DeviceConfiguration holds device-local settings as a JSON map.
//
// Examples:
//   - {"volume": 60, "door_open_seconds": 5, "anti_passback": true}
//   - {"webhook_url": "https://core.example/api/v1/events/raw/dev-01"}
type DeviceConfiguration map[string]any

// Health thresholds used to classify resource readings into issues.
// Elevated readings produce an issue entry without degrading status;
// critical readings flip status to error.
const (
	MemoryElevatedPercent = 75.0
	MemoryCriticalPercent = 90.0
	CPUElevatedPercent    = 80.0
	CPUCriticalPercent    = 95.0
	TempElevatedCelsius   = 55.0
	TempCriticalCelsius   = 70.0
)

// DeviceHealth is a point-in-time health reading from a device.
type DeviceHealth struct {
	Status        DeviceStatus `json:"status"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryPercent float64      `json:"memory_percent"`
	TempCelsius   float64      `json:"temp_celsius"`
	Issues        []string     `json:"issues,omitempty"`
	CheckedAt     time.Time    `json:"checked_at"`
}

// ClassifyIssues derives the issue list and status from resource readings.
// Elevated thresholds add issues without changing status; any critical
// threshold forces DeviceStatusError.
func (h *DeviceHealth) ClassifyIssues() {
	h.Issues = h.Issues[:0]
	critical := false

	switch {
	case h.MemoryPercent >= MemoryCriticalPercent:
		h.Issues = append(h.Issues, "memory usage critical")
		critical = true
	case h.MemoryPercent >= MemoryElevatedPercent:
		h.Issues = append(h.Issues, "memory usage elevated")
	}

	switch {
	case h.CPUPercent >= CPUCriticalPercent:
		h.Issues = append(h.Issues, "cpu usage critical")
		critical = true
	case h.CPUPercent >= CPUElevatedPercent:
		h.Issues = append(h.Issues, "cpu usage elevated")
	}

	switch {
	case h.TempCelsius >= TempCriticalCelsius:
		h.Issues = append(h.Issues, "temperature critical")
		critical = true
	case h.TempCelsius >= TempElevatedCelsius:
		h.Issues = append(h.Issues, "temperature elevated")
	}

	if critical {
		h.Status = DeviceStatusError
	}
}

// DeviceUser is a credential holder provisioned onto a device itself.
// This is distinct from the platform's guest credentials; these are the
// records the device consults locally when the network is down.
type DeviceUser struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	CardID       string `json:"card_id,omitempty"`
	FaceTemplate string `json:"face_template,omitempty"`
	ValidFrom    string `json:"valid_from,omitempty"`
	ValidUntil   string `json:"valid_until,omitempty"`
}

// FirmwareResult reports the outcome of a firmware update request.
type FirmwareResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Event is a push notification from a device delivered to a subscribed
// callback. The payload is raw vendor data; the ingestion pipeline owns
// interpretation.
type Event struct {
	DeviceID   string         `json:"device_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// EventCallback receives push events for a subscribed device.
type EventCallback func(Event)

// HealthStatus is the rolling per-type health record kept by the factory.
// Ephemeral: held in process memory, overwritten on every probe,
// never persisted.
type HealthStatus struct {
	Type         Type          `json:"type"`
	Healthy      bool          `json:"healthy"`
	LastCheck    time.Time     `json:"last_check"`
	Error        string        `json:"error,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
}

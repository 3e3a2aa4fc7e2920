package device

import (
	"time"

	"github.com/draymont/passage-core/internal/adapter"
)

// Device is a registered physical access controller or reader.
// This matches the devices table in the initial schema migration.
//
// Devices are never hard-deleted: a decommissioned device is marked
// offline and keeps its row so historical events stay attributable.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Which vendor integration speaks to this device.
	AdapterType adapter.Type `json:"adapter_type"`

	// Connection configuration
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`

	// WebhookSecret is the per-device HMAC key used to authenticate
	// raw event submissions. Never serialised to API responses.
	WebhookSecret string `json:"-"`

	// Location is a free-form placement label ("lobby", "floor 3 east").
	Location string `json:"location,omitempty"`

	// Reachability
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdapterContext builds the operation context handed to adapter calls.
func (d *Device) AdapterContext() adapter.DeviceContext {
	return adapter.DeviceContext{
		DeviceID: d.ID,
		Host:     d.Host,
		Port:     d.Port,
		Username: d.Username,
		Password: d.Password,
	}
}

package event

import "time"

// RawEvent is an untrusted payload submitted by a device. The device ID
// is deliberately absent: it is taken from the request path, never from
// the payload, so a device cannot claim another device's identity.
type RawEvent struct {
	// EventType names the physical occurrence: CARD_SCAN,
	// BIOMETRIC_MATCH, GUEST_CREDENTIAL_SCAN, DOOR_FORCED, ...
	EventType string `json:"eventType"`

	// Timestamp is the device's clock reading for the event. Optional;
	// the ingestion clock is used when absent.
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// Subject identification: exactly one of these is normally set.
	EmployeeID      string `json:"employeeId,omitempty"`
	CardID          string `json:"cardId,omitempty"`
	BiometricData   string `json:"biometricData,omitempty"`
	GuestCredential string `json:"guestCredential,omitempty"`

	// AdditionalData carries arbitrary vendor extras.
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// ProcessedEvent is the durable, deduplicated record derived from a
// RawEvent. Identity is the idempotency key; the unique index on it is
// what turns at-least-once delivery into at-most-once processing.
type ProcessedEvent struct {
	EventID        string `json:"event_id"`
	IdempotencyKey string `json:"-"`
	DeviceID       string `json:"device_id"`
	EventType      string `json:"event_type"`
	EmployeeID     string `json:"employee_id,omitempty"`
	CardID         string `json:"card_id,omitempty"`

	// VisitID links the event to the guest visit it activated, if any.
	VisitID string `json:"visit_id,omitempty"`

	OccurredAt time.Time      `json:"occurred_at"`
	ReceivedAt time.Time      `json:"received_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ReceiptStatus distinguishes a first submission from a recognised retry.
type ReceiptStatus string

// Receipt statuses.
const (
	StatusAccepted  ReceiptStatus = "accepted"
	StatusDuplicate ReceiptStatus = "duplicate"
)

// Receipt is what the submitting device gets back. A duplicate receipt
// carries the original event's ID, so retries are observably idempotent.
type Receipt struct {
	EventID string        `json:"eventId"`
	Status  ReceiptStatus `json:"status"`
	Message string        `json:"message"`
}

package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// IdempotencyKey computes the deterministic fingerprint that identifies
// a physical event across retries.
//
// The key covers the device identity, the effective timestamp truncated
// to whole seconds, and the discriminating content fields. Truncation
// fixes the clock-resolution ambiguity for retries: a device that
// replays the same payload with the same timestamp always produces the
// same key, and two submissions with no timestamp landing in the same
// second collide and are treated as one event. Devices reporting
// distinct same-second events must supply their own timestamps.
//
// The guest credential is deliberately excluded: a credential scan is
// discriminated by event type and timestamp, and keying on secret
// material would smear credential bytes into an indexed column.
func IdempotencyKey(deviceID string, effective time.Time, raw RawEvent) string {
	var b strings.Builder
	b.WriteString(deviceID)
	b.WriteByte('|')
	b.WriteString(effective.UTC().Truncate(time.Second).Format(time.RFC3339))
	b.WriteByte('|')
	b.WriteString(raw.EventType)
	b.WriteByte('|')
	b.WriteString(raw.EmployeeID)
	b.WriteByte('|')
	b.WriteString(raw.CardID)
	b.WriteByte('|')
	b.WriteString(raw.BiometricData)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

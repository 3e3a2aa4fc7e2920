// Package event implements the raw event ingestion pipeline for
// Passage Core.
//
// Physical access devices deliver at-least-once: a reader that loses
// its network mid-submission will retry the same payload. The pipeline
// turns that into at-most-once domain processing by fingerprinting
// every submission into an idempotency key and inserting against a
// unique index. The first submission is accepted (HTTP 202), persisted,
// and runs side effects; any retry is recognised as a duplicate
// (HTTP 200) carrying the original event ID, with no second row and no
// re-run effects.
//
// Side effects on the accepted path:
//   - guest credential scans resolve against stored credential hashes
//     and activate the owning visit
//   - the submitting device's presence is touched
//   - optional sinks (metrics recorder, MQTT/WebSocket announcer)
//     receive the event
package event

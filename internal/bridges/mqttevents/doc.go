// Package mqttevents bridges the MQTT broker to the event ingestion
// pipeline.
//
// Access controllers that cannot deliver webhooks publish raw events on
// passage/devices/{device_id}/events and presence updates on
// passage/devices/{device_id}/status. The bridge subscribes to both
// patterns, parses the payloads, and hands events to the pipeline,
// which applies the same idempotency guarantees as the HTTP ingest
// path. Brokers redeliver on QoS 1, so duplicate submissions are
// expected and harmless.
//
// Accepted events are announced back on passage/core/events/{type} for
// downstream consumers.
package mqttevents

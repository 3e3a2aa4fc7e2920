// Package mqtt provides MQTT client connectivity for Passage Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is the optional push transport for access-control hardware that
// cannot deliver events over HTTP webhooks. Devices publish raw events to
// passage/devices/{device_id}/events; the mqttevents bridge feeds those
// payloads into the same ingestion pipeline as the HTTP endpoint, so both
// transports share one idempotency boundary. Core also announces processed
// events and visit transitions on passage/core/... topics for downstream
// consumers.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.AllDeviceEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        // decode and process
//	        return nil
//	    })
package mqtt

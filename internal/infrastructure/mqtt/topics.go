package mqtt

import "fmt"

// Topic prefixes for the Passage MQTT namespace.
//
// Device-facing topics use the scheme: passage/devices/{device_id}/{category}
// Core-published topics use: passage/core/{category}/...
const (
	// TopicPrefixDevices is the base for device-facing topics.
	TopicPrefixDevices = "passage/devices"

	// TopicPrefixCore is the base for topics published by Core.
	TopicPrefixCore = "passage/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "passage/system"
)

// Topics provides builders for Passage MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.DeviceEvents("dev-entrance-01")
//	// Returns: "passage/devices/dev-entrance-01/events"
type Topics struct{}

// DeviceEvents returns the topic a device publishes raw access events on.
//
// Example: passage/devices/dev-entrance-01/events
func (Topics) DeviceEvents(deviceID string) string {
	return fmt.Sprintf("%s/%s/events", TopicPrefixDevices, deviceID)
}

// DeviceStatus returns the topic a device publishes its online status on.
//
// Example: passage/devices/dev-entrance-01/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevices, deviceID)
}

// DeviceCommand returns the topic Core publishes commands to a device on.
//
// Example: passage/devices/dev-entrance-01/command
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevices, deviceID)
}

// CoreEventProcessed returns the topic for processed-event notifications.
// Published after the ingestion pipeline accepts a new event; duplicates
// are not re-announced.
//
// Example: passage/core/events/card_scan
func (Topics) CoreEventProcessed(eventType string) string {
	return fmt.Sprintf("%s/events/%s", TopicPrefixCore, eventType)
}

// CoreVisitTransition returns the topic for guest-visit state transitions.
//
// Example: passage/core/visits/visit-abc123
func (Topics) CoreVisitTransition(visitID string) string {
	return fmt.Sprintf("%s/visits/%s", TopicPrefixCore, visitID)
}

// SystemStatus returns the system status topic.
//
// Example: passage/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceEvents returns a pattern matching raw events from every device.
//
// Pattern: passage/devices/+/events
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/+/events", TopicPrefixDevices)
}

// AllDeviceStatus returns a pattern matching status updates from every device.
//
// Pattern: passage/devices/+/status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixDevices)
}

// AllTopics returns a pattern matching all Passage topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: passage/#
func (Topics) AllTopics() string {
	return "passage/#"
}

package mqttevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/draymont/passage-core/internal/event"
	"github.com/draymont/passage-core/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// deviceTopicParts is the number of parts in a device topic
	// (passage/devices/{device_id}/{category}).
	deviceTopicParts = 4

	// ingestTimeout bounds a single raw-event submission.
	ingestTimeout = 10 * time.Second
)

// Ingestor accepts raw device events for processing.
// Satisfied by *event.Pipeline.
type Ingestor interface {
	ProcessRawEvent(ctx context.Context, raw event.RawEvent, deviceID string) (event.Receipt, error)
}

// Presence tracks device online state from broker status messages.
// Satisfied by *device.Registry. Optional - if nil, status messages
// are ignored.
type Presence interface {
	MarkSeen(ctx context.Context, id string, at time.Time) error
	MarkOffline(ctx context.Context, id string) error
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// statusMessage is the payload devices publish on their status topic.
type statusMessage struct {
	Online bool `json:"online"`
}

// Bridge connects the MQTT broker to the ingestion pipeline.
// It handles:
//   - Receiving raw access events from devices and feeding them to the pipeline
//   - Tracking device presence from status messages
//   - Announcing processed events back onto the core namespace
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	ingestor Ingestor
	presence Presence
	topics   mqtt.Topics

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	logger Logger
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Ingestor receives raw events parsed from the broker.
	Ingestor Ingestor

	// Presence is optional device presence tracking.
	Presence Presence

	// Logger is optional structured logging.
	Logger Logger
}

// New creates a bridge instance. Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("mqttevents: MQTT client is required")
	}
	if opts.Ingestor == nil {
		return nil, fmt.Errorf("mqttevents: ingestor is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		mqtt:      opts.MQTTClient,
		ingestor:  opts.Ingestor,
		presence:  opts.Presence,
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    opts.Logger,
	}, nil
}

// Start subscribes to the device namespace.
func (b *Bridge) Start() error {
	eventTopic := b.topics.AllDeviceEvents()
	if err := b.mqtt.Subscribe(eventTopic, 1, b.handleEventMessage); err != nil {
		return fmt.Errorf("subscribe to device events: %w", err)
	}
	b.logInfo("subscribed to device events", "topic", eventTopic)

	statusTopic := b.topics.AllDeviceStatus()
	if err := b.mqtt.Subscribe(statusTopic, 1, b.handleStatusMessage); err != nil {
		return fmt.Errorf("subscribe to device status: %w", err)
	}
	b.logInfo("subscribed to device status", "topic", statusTopic)

	return nil
}

// Stop cancels in-flight submissions. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.logInfo("bridge stopped")
	})
}

// AnnounceEvent publishes a processed-event notification to the core
// namespace. Satisfies the pipeline's Announcer interface; duplicates
// never reach it.
func (b *Bridge) AnnounceEvent(ev *event.ProcessedEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logError("marshal processed event", err, "event_id", ev.EventID)
		return
	}

	topic := b.topics.CoreEventProcessed(strings.ToLower(ev.EventType))
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("publish processed event", err, "event_id", ev.EventID)
	}
}

// handleEventMessage parses a raw event message and submits it to the
// pipeline. Returning an error triggers the client's handler logging;
// malformed payloads are dropped rather than retried.
func (b *Bridge) handleEventMessage(topic string, payload []byte) error {
	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected event topic %q", topic)
	}

	var raw event.RawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		b.logWarn("dropping malformed event payload", "device_id", deviceID, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, ingestTimeout)
	defer cancel()

	receipt, err := b.ingestor.ProcessRawEvent(ctx, raw, deviceID)
	if err != nil {
		return fmt.Errorf("process event from %s: %w", deviceID, err)
	}

	if receipt.Status == event.StatusDuplicate {
		b.logInfo("duplicate event dropped", "device_id", deviceID, "event_id", receipt.EventID)
	}
	return nil
}

// handleStatusMessage updates device presence from a status payload.
func (b *Bridge) handleStatusMessage(topic string, payload []byte) error {
	if b.presence == nil {
		return nil
	}

	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected status topic %q", topic)
	}

	var status statusMessage
	if err := json.Unmarshal(payload, &status); err != nil {
		b.logWarn("dropping malformed status payload", "device_id", deviceID, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, ingestTimeout)
	defer cancel()

	if status.Online {
		return b.presence.MarkSeen(ctx, deviceID, time.Now().UTC())
	}
	return b.presence.MarkOffline(ctx, deviceID)
}

// deviceIDFromTopic extracts the device identifier from
// passage/devices/{device_id}/{category}.
func deviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != deviceTopicParts || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, err error, args ...any) {
	if b.logger != nil {
		b.logger.Error(msg, append([]any{"error", err}, args...)...)
	}
}

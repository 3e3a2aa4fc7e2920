package mqttevents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/draymont/passage-core/internal/event"
)

// mockMQTT captures subscriptions and published messages.
type mockMQTT struct {
	mu        sync.Mutex
	handlers  map[string]func(topic string, payload []byte) error
	published []publishedMsg
	subErr    error
}

type publishedMsg struct {
	topic   string
	payload []byte
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{handlers: make(map[string]func(string, []byte) error)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	m.published = append(m.published, publishedMsg{topic: topic, payload: payload})
	m.mu.Unlock()
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	if m.subErr != nil {
		return m.subErr
	}
	m.mu.Lock()
	m.handlers[topic] = handler
	m.mu.Unlock()
	return nil
}

func (m *mockMQTT) IsConnected() bool { return true }

// deliver simulates a broker message arriving on a concrete topic,
// routed through the handler registered for the matching pattern.
func (m *mockMQTT) deliver(pattern, topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if !ok {
		return errors.New("no handler for pattern " + pattern)
	}
	return handler(topic, payload)
}

// mockIngestor records submissions and returns a scripted receipt.
type mockIngestor struct {
	mu      sync.Mutex
	calls   []ingestCall
	receipt event.Receipt
	err     error
}

type ingestCall struct {
	deviceID string
	raw      event.RawEvent
}

func (m *mockIngestor) ProcessRawEvent(_ context.Context, raw event.RawEvent, deviceID string) (event.Receipt, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ingestCall{deviceID: deviceID, raw: raw})
	m.mu.Unlock()
	if m.err != nil {
		return event.Receipt{}, m.err
	}
	return m.receipt, nil
}

// mockPresence records presence updates.
type mockPresence struct {
	mu      sync.Mutex
	seen    []string
	offline []string
}

func (m *mockPresence) MarkSeen(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	m.seen = append(m.seen, id)
	m.mu.Unlock()
	return nil
}

func (m *mockPresence) MarkOffline(_ context.Context, id string) error {
	m.mu.Lock()
	m.offline = append(m.offline, id)
	m.mu.Unlock()
	return nil
}

func newTestBridge(t *testing.T, client *mockMQTT, ing *mockIngestor, pres *mockPresence) *Bridge {
	t.Helper()
	b, err := New(Options{MQTTClient: client, Ingestor: ing, Presence: pres})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Ingestor: &mockIngestor{}}); err == nil {
		t.Error("expected error without MQTT client")
	}
	if _, err := New(Options{MQTTClient: newMockMQTT()}); err == nil {
		t.Error("expected error without ingestor")
	}
}

func TestBridge_Start(t *testing.T) {
	client := newMockMQTT()
	newTestBridge(t, client, &mockIngestor{}, nil)

	for _, pattern := range []string{"passage/devices/+/events", "passage/devices/+/status"} {
		if _, ok := client.handlers[pattern]; !ok {
			t.Errorf("no subscription for %s", pattern)
		}
	}
}

func TestBridge_EventMessages(t *testing.T) {
	t.Run("valid event reaches the pipeline", func(t *testing.T) {
		client := newMockMQTT()
		ing := &mockIngestor{receipt: event.Receipt{EventID: "ev-1", Status: event.StatusAccepted}}
		newTestBridge(t, client, ing, nil)

		payload := []byte(`{"eventType":"CARD_SCAN","cardId":"card-42","timestamp":"2024-01-01T09:00:00Z"}`)
		err := client.deliver("passage/devices/+/events", "passage/devices/dev-1/events", payload)
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}

		if len(ing.calls) != 1 {
			t.Fatalf("ingestor calls = %d, want 1", len(ing.calls))
		}
		call := ing.calls[0]
		if call.deviceID != "dev-1" {
			t.Errorf("deviceID = %q, want dev-1", call.deviceID)
		}
		if call.raw.EventType != "CARD_SCAN" || call.raw.CardID != "card-42" {
			t.Errorf("raw event = %+v, missing parsed fields", call.raw)
		}
		if call.raw.Timestamp == nil {
			t.Error("timestamp not parsed")
		}
	})

	t.Run("malformed payload is dropped silently", func(t *testing.T) {
		client := newMockMQTT()
		ing := &mockIngestor{}
		newTestBridge(t, client, ing, nil)

		err := client.deliver("passage/devices/+/events", "passage/devices/dev-1/events", []byte("{not json"))
		if err != nil {
			t.Errorf("handler error = %v, want nil for malformed payload", err)
		}
		if len(ing.calls) != 0 {
			t.Errorf("ingestor calls = %d, want 0", len(ing.calls))
		}
	})

	t.Run("pipeline failure surfaces to the handler", func(t *testing.T) {
		client := newMockMQTT()
		ing := &mockIngestor{err: errors.New("database is locked")}
		newTestBridge(t, client, ing, nil)

		err := client.deliver("passage/devices/+/events", "passage/devices/dev-1/events", []byte(`{"eventType":"CARD_SCAN"}`))
		if err == nil {
			t.Error("expected pipeline error to propagate")
		}
	})

	t.Run("unexpected topic shape errors", func(t *testing.T) {
		client := newMockMQTT()
		newTestBridge(t, client, &mockIngestor{}, nil)

		err := client.deliver("passage/devices/+/events", "passage/devices/events", []byte("{}"))
		if err == nil {
			t.Error("expected error for short topic")
		}
	})
}

func TestBridge_StatusMessages(t *testing.T) {
	client := newMockMQTT()
	pres := &mockPresence{}
	newTestBridge(t, client, &mockIngestor{}, pres)

	if err := client.deliver("passage/devices/+/status", "passage/devices/dev-1/status", []byte(`{"online":true}`)); err != nil {
		t.Fatalf("online status error = %v", err)
	}
	if err := client.deliver("passage/devices/+/status", "passage/devices/dev-2/status", []byte(`{"online":false}`)); err != nil {
		t.Fatalf("offline status error = %v", err)
	}

	if len(pres.seen) != 1 || pres.seen[0] != "dev-1" {
		t.Errorf("seen = %v, want [dev-1]", pres.seen)
	}
	if len(pres.offline) != 1 || pres.offline[0] != "dev-2" {
		t.Errorf("offline = %v, want [dev-2]", pres.offline)
	}
}

func TestBridge_AnnounceEvent(t *testing.T) {
	client := newMockMQTT()
	b := newTestBridge(t, client, &mockIngestor{}, nil)

	b.AnnounceEvent(&event.ProcessedEvent{
		EventID:   "ev-9",
		DeviceID:  "dev-1",
		EventType: "CARD_SCAN",
	})

	if len(client.published) != 1 {
		t.Fatalf("published = %d messages, want 1", len(client.published))
	}
	msg := client.published[0]
	if msg.topic != "passage/core/events/card_scan" {
		t.Errorf("topic = %q, want passage/core/events/card_scan", msg.topic)
	}
	if !strings.Contains(string(msg.payload), `"event_id":"ev-9"`) {
		t.Errorf("payload %s missing event id", msg.payload)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Errorf("payload is not valid JSON: %v", err)
	}
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"passage/devices/dev-1/events", "dev-1", true},
		{"passage/devices/dev-1/status", "dev-1", true},
		{"passage/devices//events", "", false},
		{"passage/devices/events", "", false},
		{"passage/devices/dev-1/events/extra", "", false},
	}
	for _, tt := range tests {
		gotID, gotOK := deviceIDFromTopic(tt.topic)
		if gotID != tt.wantID || gotOK != tt.wantOK {
			t.Errorf("deviceIDFromTopic(%q) = (%q, %v), want (%q, %v)",
				tt.topic, gotID, gotOK, tt.wantID, tt.wantOK)
		}
	}
}

package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/draymont/passage-core/internal/event"
)

// RecordEvent writes an access event measurement to InfluxDB.
//
// It satisfies the ingestion pipeline's Recorder interface, so every
// accepted event lands in the time-series store for throughput and
// per-device dashboards. The write is non-blocking; data is batched
// and sent asynchronously.
//
// Only low-cardinality identifiers become tags. Employee and visit
// identifiers are recorded as fields to keep series cardinality bounded.
func (c *Client) RecordEvent(ev *event.ProcessedEvent) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": 1,
	}
	if ev.EmployeeID != "" {
		fields["employee_id"] = ev.EmployeeID
	}
	if ev.VisitID != "" {
		fields["visit_id"] = ev.VisitID
	}

	point := write.NewPoint(
		"access_events",
		map[string]string{
			"device_id":  ev.DeviceID,
			"event_type": ev.EventType,
		},
		fields,
		ev.OccurredAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteVisitTransition records a guest visit lifecycle change.
//
// Parameters:
//   - visitID: Visit identifier
//   - from, to: The lifecycle statuses before and after the change
func (c *Client) WriteVisitTransition(visitID string, from, to string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"visit_transitions",
		map[string]string{
			"from": from,
			"to":   to,
		},
		map[string]interface{}{
			"visit_id": visitID,
			"count":    1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAdapterHealth records the outcome of an adapter health probe.
//
// One point per adapter type per probe cycle keeps the series small
// while still supporting availability dashboards.
func (c *Client) WriteAdapterHealth(adapterType string, healthy bool, responseTime time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"adapter_health",
		map[string]string{
			"adapter_type": adapterType,
		},
		map[string]interface{}{
			"healthy":          healthy,
			"response_time_ms": float64(responseTime.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

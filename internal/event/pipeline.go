package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/draymont/passage-core/internal/infrastructure/logging"
	"github.com/draymont/passage-core/internal/visit"
)

// DeviceDirectory is the slice of the device registry the pipeline needs.
type DeviceDirectory interface {
	// MarkSeen records that the device just submitted an event.
	MarkSeen(ctx context.Context, id string, at time.Time) error
}

// VisitActivator resolves a scanned guest credential to its visit and
// commits the activation. Implemented by the visit service.
type VisitActivator interface {
	// ResolveByCredential maps a raw credential to the visit holding
	// its hash without changing state.
	ResolveByCredential(ctx context.Context, rawCredential string) (*visit.Visit, error)

	// ActivateByCredential transitions the owning visit to active.
	ActivateByCredential(ctx context.Context, rawCredential string, at time.Time) (*visit.Visit, error)
}

// Recorder receives accepted events for metrics sinks. Implementations
// must not block; failures are theirs to swallow.
type Recorder interface {
	RecordEvent(ev *ProcessedEvent)
}

// Announcer pushes accepted events to interested transports (MQTT
// topics, WebSocket clients). Only new events are announced; duplicates
// already ran their side effects the first time.
type Announcer interface {
	AnnounceEvent(ev *ProcessedEvent)
}

// Pipeline converts untrusted raw event submissions into durable,
// deduplicated processed events.
//
// The correctness guarantee: at-most-once domain-level processing of a
// physical event despite at-least-once delivery from devices that retry
// on network failure. Side effects (visit activation, presence touch,
// announcements) run only on the accepted path, never on duplicates.
type Pipeline struct {
	repo      Repository
	devices   DeviceDirectory
	visits    VisitActivator
	log       *logging.Logger
	recorder  Recorder
	announcer Announcer
}

// NewPipeline creates an ingestion pipeline.
// devices and visits may be nil in tests; the corresponding side
// effects are skipped.
func NewPipeline(repo Repository, devices DeviceDirectory, visits VisitActivator, log *logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Default()
	}
	return &Pipeline{
		repo:    repo,
		devices: devices,
		visits:  visits,
		log:     log.With("component", "ingest"),
	}
}

// SetRecorder attaches a metrics sink. Call before serving traffic.
func (p *Pipeline) SetRecorder(r Recorder) {
	p.recorder = r
}

// SetAnnouncer attaches an event announcer. Call before serving traffic.
func (p *Pipeline) SetAnnouncer(a Announcer) {
	p.announcer = a
}

// ProcessRawEvent ingests one submission attributed to deviceID.
//
// A new event is persisted, runs its side effects, and yields an
// accepted receipt. A retry that fingerprints to an existing event
// yields a duplicate receipt carrying the original event ID and runs
// nothing. Any other failure propagates unchanged.
func (p *Pipeline) ProcessRawEvent(ctx context.Context, raw RawEvent, deviceID string) (Receipt, error) {
	if deviceID == "" {
		return Receipt{}, ErrMissingDeviceID
	}
	if raw.EventType == "" {
		return Receipt{}, ErrMissingEventType
	}

	now := time.Now().UTC()
	effective := now
	if raw.Timestamp != nil {
		effective = raw.Timestamp.UTC()
	}

	key := IdempotencyKey(deviceID, effective, raw)

	ev := &ProcessedEvent{
		EventID:        uuid.NewString(),
		IdempotencyKey: key,
		DeviceID:       deviceID,
		EventType:      raw.EventType,
		EmployeeID:     raw.EmployeeID,
		CardID:         raw.CardID,
		OccurredAt:     effective,
		ReceivedAt:     now,
		Payload:        raw.AdditionalData,
	}

	// Only resolve the credential here; linking the stored event to
	// its visit needs no state change. The activation itself waits for
	// the accepted path below, so a replayed submission that dedups
	// can never re-drive the transition.
	if raw.GuestCredential != "" && p.visits != nil {
		v, err := p.visits.ResolveByCredential(ctx, raw.GuestCredential)
		switch {
		case err == nil:
			ev.VisitID = v.ID
		case errors.Is(err, visit.ErrCredentialNotFound):
			// The scan is still a real physical event worth recording;
			// an unknown credential just doesn't open anything.
			p.log.Warn("credential scan matched no visit",
				"device_id", deviceID,
			)
		default:
			return Receipt{}, err
		}
	}

	if err := p.repo.Insert(ctx, ev); err != nil {
		if errors.Is(err, ErrDuplicate) {
			existing, lookupErr := p.repo.GetByIdempotencyKey(ctx, key)
			if lookupErr != nil {
				return Receipt{}, lookupErr
			}
			p.log.Debug("duplicate event submission recognised",
				"event_id", existing.EventID,
				"device_id", deviceID,
			)
			return Receipt{
				EventID: existing.EventID,
				Status:  StatusDuplicate,
				Message: "event already processed",
			}, nil
		}
		return Receipt{}, err
	}

	p.activateGuest(ctx, raw.GuestCredential, ev)
	p.runSideEffects(ctx, ev)

	return Receipt{
		EventID: ev.EventID,
		Status:  StatusAccepted,
		Message: "event accepted",
	}, nil
}

// activateGuest commits the visit activation for a credential scan.
// Runs only after the event row is durable, so a duplicate submission
// never reaches the activator and a failed insert leaves no partial
// state. The event is already recorded; an activation failure here is
// logged, not propagated, since a device retry would dedup and never
// get another chance to report it.
func (p *Pipeline) activateGuest(ctx context.Context, rawCredential string, ev *ProcessedEvent) {
	if rawCredential == "" || p.visits == nil || ev.VisitID == "" {
		return
	}

	_, err := p.visits.ActivateByCredential(ctx, rawCredential, ev.OccurredAt)
	switch {
	case err == nil:
		p.log.Info("guest visit activated by credential scan",
			"visit_id", ev.VisitID,
			"device_id", ev.DeviceID,
		)
	case errors.Is(err, visit.ErrStateConflict):
		// Out of the scheduled window, or the visit is not approved.
		p.log.Warn("credential scan did not activate the visit",
			"visit_id", ev.VisitID,
			"device_id", ev.DeviceID,
			"error", err,
		)
	default:
		p.log.Error("visit activation failed after event was recorded",
			"visit_id", ev.VisitID,
			"device_id", ev.DeviceID,
			"error", err,
		)
	}
}

// EventsForDevice returns the most recent processed events for a device.
// limit <= 0 applies the repository default.
func (p *Pipeline) EventsForDevice(ctx context.Context, deviceID string, limit int) ([]ProcessedEvent, error) {
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	return p.repo.ListByDevice(ctx, deviceID, limit)
}

// runSideEffects executes the post-insert effects for a new event.
// These are best-effort: the event is already durable, and a failed
// presence touch or announcement must not fail the submission.
func (p *Pipeline) runSideEffects(ctx context.Context, ev *ProcessedEvent) {
	if p.devices != nil {
		if err := p.devices.MarkSeen(ctx, ev.DeviceID, ev.ReceivedAt); err != nil {
			p.log.Warn("presence update failed",
				"device_id", ev.DeviceID,
				"error", err,
			)
		}
	}
	if p.recorder != nil {
		p.recorder.RecordEvent(ev)
	}
	if p.announcer != nil {
		p.announcer.AnnounceEvent(ev)
	}

	p.log.Info("event accepted",
		"event_id", ev.EventID,
		"device_id", ev.DeviceID,
		"event_type", ev.EventType,
	)
}

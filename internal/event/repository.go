package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for processed-event persistence.
//
// Insert is the concurrency boundary of the whole subsystem: it must be
// an atomic insert-or-detect against the unique idempotency index, not
// a check followed by a separate insert. Two concurrent submissions
// with the same key must resolve to exactly one stored row, with the
// loser receiving ErrDuplicate.
type Repository interface {
	// Insert persists a new processed event.
	// Returns ErrDuplicate if the idempotency key already exists.
	Insert(ctx context.Context, ev *ProcessedEvent) error

	// GetByIdempotencyKey retrieves the event holding a key.
	// Returns ErrNotFound if no event matches.
	GetByIdempotencyKey(ctx context.Context, key string) (*ProcessedEvent, error)

	// GetByID retrieves an event by its unique identifier.
	GetByID(ctx context.Context, id string) (*ProcessedEvent, error)

	// ListByDevice retrieves recent events for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]ProcessedEvent, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const eventColumns = `event_id, idempotency_key, device_id, event_type,
	employee_id, card_id, visit_id, occurred_at, received_at, payload`

// Insert persists a new processed event. The unique index on
// idempotency_key arbitrates concurrent duplicates atomically.
func (r *SQLiteRepository) Insert(ctx context.Context, ev *ProcessedEvent) error {
	payloadJSON := []byte("{}")
	if ev.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshalling payload: %w", err)
		}
	}

	query := `
		INSERT INTO processed_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		ev.EventID,
		ev.IdempotencyKey,
		ev.DeviceID,
		ev.EventType,
		ev.EmployeeID,
		ev.CardID,
		ev.VisitID,
		ev.OccurredAt.UTC().Format(time.RFC3339),
		ev.ReceivedAt.UTC().Format(time.RFC3339),
		string(payloadJSON),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetByIdempotencyKey retrieves the event holding a key.
func (r *SQLiteRepository) GetByIdempotencyKey(ctx context.Context, key string) (*ProcessedEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM processed_events WHERE idempotency_key = ?`
	return r.getOne(ctx, query, key)
}

// GetByID retrieves an event by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*ProcessedEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM processed_events WHERE event_id = ?`
	return r.getOne(ctx, query, id)
}

// ListByDevice retrieves recent events for a device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]ProcessedEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + eventColumns + `
		FROM processed_events
		WHERE device_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []ProcessedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*ProcessedEvent, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return ev, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanEvent.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*ProcessedEvent, error) {
	var (
		ev          ProcessedEvent
		occurredAt  string
		receivedAt  string
		payloadJSON string
	)

	err := s.Scan(
		&ev.EventID,
		&ev.IdempotencyKey,
		&ev.DeviceID,
		&ev.EventType,
		&ev.EmployeeID,
		&ev.CardID,
		&ev.VisitID,
		&occurredAt,
		&receivedAt,
		&payloadJSON,
	)
	if err != nil {
		return nil, err
	}

	if ev.OccurredAt, err = time.Parse(time.RFC3339, occurredAt); err != nil {
		return nil, fmt.Errorf("parsing occurred_at: %w", err)
	}
	if ev.ReceivedAt, err = time.Parse(time.RFC3339, receivedAt); err != nil {
		return nil, fmt.Errorf("parsing received_at: %w", err)
	}
	if payloadJSON != "" && payloadJSON != "{}" {
		if err := json.Unmarshal([]byte(payloadJSON), &ev.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling payload: %w", err)
		}
	}
	return &ev, nil
}

package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for visit persistence operations.
//
// Transition methods are conditional writes: the status precondition is
// part of the UPDATE statement itself, so two concurrent callers cannot
// both succeed. A caller that loses the race gets ErrStateConflict.
type Repository interface {
	// Create inserts a new visit.
	Create(ctx context.Context, v *Visit) error

	// GetByID retrieves a visit by its unique identifier.
	// Returns ErrNotFound if the visit does not exist.
	GetByID(ctx context.Context, id string) (*Visit, error)

	// GetByCredentialHash retrieves the visit holding a credential hash.
	// Returns ErrCredentialNotFound if no visit matches.
	GetByCredentialHash(ctx context.Context, hash string) (*Visit, error)

	// List retrieves visits matching the filter, newest first.
	List(ctx context.Context, f ListFilter) ([]Visit, error)

	// Update modifies the editable fields of a visit.
	Update(ctx context.Context, v *Visit) error

	// Approve transitions pending → approved and stores the credential.
	Approve(ctx context.Context, id string, ct CredentialType, credentialHash string) error

	// Reject transitions pending → rejected with a reason.
	Reject(ctx context.Context, id, reason string) error

	// Activate transitions approved → active and records entry time.
	Activate(ctx context.Context, id string, entry time.Time) error

	// Complete transitions active → completed and records exit time.
	Complete(ctx context.Context, id string, exit time.Time) error

	// ExpireOverdue transitions every pending or approved visit whose
	// scheduled exit has passed to expired. Returns the count.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const visitColumns = `id, org_id, branch_id, guest_name, guest_email,
	host_employee_id, purpose,
	status, credential_type, credential_hash, rejection_reason,
	scheduled_entry, scheduled_exit, actual_entry, actual_exit,
	created_at, updated_at`

// Create inserts a new visit.
func (r *SQLiteRepository) Create(ctx context.Context, v *Visit) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	query := `
		INSERT INTO guest_visits (` + visitColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.OrgID,
		v.BranchID,
		v.GuestName,
		v.GuestEmail,
		v.HostEmployeeID,
		v.Purpose,
		string(v.Status),
		string(v.CredentialType),
		nullableString(v.CredentialHash),
		v.RejectionReason,
		v.ScheduledEntry.UTC().Format(time.RFC3339),
		v.ScheduledExit.UTC().Format(time.RFC3339),
		nullableTime(v.ActualEntry),
		nullableTime(v.ActualExit),
		v.CreatedAt.Format(time.RFC3339),
		v.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting visit: %w", err)
	}
	return nil
}

// GetByID retrieves a visit by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM guest_visits WHERE id = ?`

	v, err := scanVisit(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying visit by id: %w", err)
	}
	return v, nil
}

// GetByCredentialHash retrieves the visit holding a credential hash.
// The partial unique index on credential_hash makes this an O(1) lookup.
func (r *SQLiteRepository) GetByCredentialHash(ctx context.Context, hash string) (*Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM guest_visits WHERE credential_hash = ?`

	v, err := scanVisit(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("querying visit by credential: %w", err)
	}
	return v, nil
}

// List retrieves visits matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f ListFilter) ([]Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM guest_visits WHERE 1=1`
	var args []any

	if f.OrgID != "" {
		query += ` AND org_id = ?`
		args = append(args, f.OrgID)
	}
	if f.BranchID != "" {
		query += ` AND branch_id = ?`
		args = append(args, f.BranchID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.HostEmployeeID != "" {
		query += ` AND host_employee_id = ?`
		args = append(args, f.HostEmployeeID)
	}
	if f.Search != "" {
		query += ` AND (guest_name LIKE ? OR guest_email LIKE ?)`
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}

	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying visits: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning visit row: %w", err)
		}
		visits = append(visits, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visit rows: %w", err)
	}
	return visits, nil
}

// Update modifies the editable fields of a visit. Status and credential
// columns are deliberately excluded; those move only through transitions.
// The organization is fixed at creation; only the branch may move.
func (r *SQLiteRepository) Update(ctx context.Context, v *Visit) error {
	v.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE guest_visits
		SET branch_id = ?, guest_name = ?, guest_email = ?, host_employee_id = ?,
			purpose = ?, scheduled_entry = ?, scheduled_exit = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		v.BranchID,
		v.GuestName,
		v.GuestEmail,
		v.HostEmployeeID,
		v.Purpose,
		v.ScheduledEntry.UTC().Format(time.RFC3339),
		v.ScheduledExit.UTC().Format(time.RFC3339),
		v.UpdatedAt.Format(time.RFC3339),
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("updating visit: %w", err)
	}
	return r.checkAffected(ctx, result, v.ID, "")
}

// Approve transitions pending → approved and stores the credential.
func (r *SQLiteRepository) Approve(ctx context.Context, id string, ct CredentialType, credentialHash string) error {
	query := `
		UPDATE guest_visits
		SET status = ?, credential_type = ?, credential_hash = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusApproved),
		string(ct),
		credentialHash,
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("approving visit: %w", err)
	}
	return r.checkAffected(ctx, result, id, StatusPending)
}

// Reject transitions pending → rejected with a reason.
func (r *SQLiteRepository) Reject(ctx context.Context, id, reason string) error {
	query := `
		UPDATE guest_visits
		SET status = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusRejected),
		reason,
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("rejecting visit: %w", err)
	}
	return r.checkAffected(ctx, result, id, StatusPending)
}

// Activate transitions approved → active and records entry time.
func (r *SQLiteRepository) Activate(ctx context.Context, id string, entry time.Time) error {
	query := `
		UPDATE guest_visits
		SET status = ?, actual_entry = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusActive),
		entry.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(StatusApproved),
	)
	if err != nil {
		return fmt.Errorf("activating visit: %w", err)
	}
	return r.checkAffected(ctx, result, id, StatusApproved)
}

// Complete transitions active → completed and records exit time.
func (r *SQLiteRepository) Complete(ctx context.Context, id string, exit time.Time) error {
	query := `
		UPDATE guest_visits
		SET status = ?, actual_exit = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusCompleted),
		exit.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
		string(StatusActive),
	)
	if err != nil {
		return fmt.Errorf("completing visit: %w", err)
	}
	return r.checkAffected(ctx, result, id, StatusActive)
}

// ExpireOverdue transitions every pending or approved visit whose
// scheduled exit has passed to expired. The (status, scheduled_exit)
// index keeps this sweep cheap regardless of table size.
func (r *SQLiteRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE guest_visits
		SET status = ?, updated_at = ?
		WHERE status IN (?, ?) AND scheduled_exit < ?`

	result, err := r.db.ExecContext(ctx, query,
		string(StatusExpired),
		now.UTC().Format(time.RFC3339),
		string(StatusPending),
		string(StatusApproved),
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("expiring overdue visits: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting expired visits: %w", err)
	}
	return count, nil
}

// checkAffected distinguishes "no such visit" from "wrong state" after a
// conditional write touched zero rows.
func (r *SQLiteRepository) checkAffected(ctx context.Context, result sql.Result, id string, wantStatus Status) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if wantStatus != "" && current.Status != wantStatus {
		return fmt.Errorf("%w: %s cannot leave %s", ErrStateConflict, id, current.Status)
	}
	return ErrNotFound
}

// scanner abstracts *sql.Row and *sql.Rows for scanVisit.
type scanner interface {
	Scan(dest ...any) error
}

func scanVisit(s scanner) (*Visit, error) {
	var (
		v              Visit
		status         string
		credentialType string
		credentialHash sql.NullString
		schedEntry     string
		schedExit      string
		actualEntry    sql.NullString
		actualExit     sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := s.Scan(
		&v.ID,
		&v.OrgID,
		&v.BranchID,
		&v.GuestName,
		&v.GuestEmail,
		&v.HostEmployeeID,
		&v.Purpose,
		&status,
		&credentialType,
		&credentialHash,
		&v.RejectionReason,
		&schedEntry,
		&schedExit,
		&actualEntry,
		&actualExit,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Status = Status(status)
	v.CredentialType = CredentialType(credentialType)
	if credentialHash.Valid {
		v.CredentialHash = credentialHash.String
	}

	if v.ScheduledEntry, err = time.Parse(time.RFC3339, schedEntry); err != nil {
		return nil, fmt.Errorf("parsing scheduled_entry: %w", err)
	}
	if v.ScheduledExit, err = time.Parse(time.RFC3339, schedExit); err != nil {
		return nil, fmt.Errorf("parsing scheduled_exit: %w", err)
	}
	if actualEntry.Valid {
		if t, err := time.Parse(time.RFC3339, actualEntry.String); err == nil {
			v.ActualEntry = &t
		}
	}
	if actualExit.Valid {
		if t, err := time.Parse(time.RFC3339, actualExit.String); err == nil {
			v.ActualExit = &t
		}
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if v.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &v, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

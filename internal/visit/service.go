package visit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/draymont/passage-core/internal/infrastructure/logging"
)

// Service owns the guest visit lifecycle. All state movement goes
// through it; handlers and the event pipeline never touch the
// repository's transition methods directly.
type Service struct {
	repo   Repository
	log    *logging.Logger
	notify TransitionNotifier
}

// TransitionNotifier observes committed visit transitions. Used to fan
// state changes out to the WebSocket hub and the metrics sink.
type TransitionNotifier func(visitID string, from, to Status)

// ApprovalResult carries the outcome of an approval. RawCredential is
// the only time the credential value ever leaves the system; it is not
// recoverable afterwards.
type ApprovalResult struct {
	Visit         *Visit `json:"visit"`
	RawCredential string `json:"raw_credential"`
}

// NewService creates a visit service.
func NewService(repo Repository, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Default()
	}
	return &Service{
		repo: repo,
		log:  log.With("component", "visit"),
	}
}

// SetNotifier installs the transition observer. Call during startup,
// before the service receives traffic.
func (s *Service) SetNotifier(fn TransitionNotifier) {
	s.notify = fn
}

func (s *Service) notifyTransition(id string, from, to Status) {
	if s.notify != nil {
		s.notify(id, from, to)
	}
}

// Create registers a new visit in pending state.
// The scheduled window must be non-empty and ordered entry before exit.
func (s *Service) Create(ctx context.Context, v *Visit) error {
	if v.GuestName == "" {
		return ErrInvalidGuest
	}
	if v.OrgID == "" || v.BranchID == "" {
		return ErrMissingOrg
	}
	if v.ScheduledEntry.IsZero() || v.ScheduledExit.IsZero() || !v.ScheduledEntry.Before(v.ScheduledExit) {
		return ErrInvalidWindow
	}

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.Status = StatusPending
	v.CredentialType = ""
	v.CredentialHash = ""

	if err := s.repo.Create(ctx, v); err != nil {
		return err
	}

	s.log.Info("visit created",
		"visit_id", v.ID,
		"guest", v.GuestName,
		"scheduled_entry", v.ScheduledEntry.Format(time.RFC3339),
	)
	s.notifyTransition(v.ID, "", StatusPending)
	return nil
}

// Get retrieves a visit by ID.
func (s *Service) Get(ctx context.Context, id string) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves visits matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Visit, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, fmt.Errorf("visit: unknown status filter %q, valid statuses: %v", f.Status, AllStatuses())
	}
	return s.repo.List(ctx, f)
}

// ensureCanTransition loads the visit and checks the transition table
// before the conditional write, so illegal moves fail with an error
// naming the blocking state without burning a write. The UPDATE's
// status predicate remains the authority under concurrency.
func (s *Service) ensureCanTransition(ctx context.Context, id string, to Status) (*Visit, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.Status.CanTransitionTo(to) {
		if v.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: %s is %s, a terminal state",
				ErrStateConflict, id, v.Status)
		}
		return nil, fmt.Errorf("%w: %s is %s, cannot become %s",
			ErrStateConflict, id, v.Status, to)
	}
	return v, nil
}

// Update modifies the editable fields of a visit. Only pending visits
// may be edited; anything later has operational consequences already.
func (s *Service) Update(ctx context.Context, v *Visit) error {
	if v.GuestName == "" {
		return ErrInvalidGuest
	}
	if !v.ScheduledEntry.Before(v.ScheduledExit) {
		return ErrInvalidWindow
	}

	current, err := s.repo.GetByID(ctx, v.ID)
	if err != nil {
		return err
	}
	if current.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s, only pending visits are editable",
			ErrStateConflict, v.ID, current.Status)
	}
	return s.repo.Update(ctx, v)
}

// Approve issues a credential and transitions the visit to approved.
// The raw credential is returned exactly once; only its hash persists.
func (s *Service) Approve(ctx context.Context, id string, ct CredentialType) (*ApprovalResult, error) {
	if !ct.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCredentialType, ct)
	}
	if _, err := s.ensureCanTransition(ctx, id, StatusApproved); err != nil {
		return nil, err
	}

	raw, hash, err := GenerateCredential()
	if err != nil {
		return nil, err
	}

	if err := s.repo.Approve(ctx, id, ct, hash); err != nil {
		return nil, err
	}

	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info("visit approved",
		"visit_id", id,
		"credential_type", string(ct),
	)
	s.notifyTransition(id, StatusPending, StatusApproved)
	return &ApprovalResult{Visit: v, RawCredential: raw}, nil
}

// Reject transitions a pending visit to rejected. A reason is required.
func (s *Service) Reject(ctx context.Context, id, reason string) error {
	if reason == "" {
		return ErrMissingReason
	}
	if _, err := s.ensureCanTransition(ctx, id, StatusRejected); err != nil {
		return err
	}
	if err := s.repo.Reject(ctx, id, reason); err != nil {
		return err
	}

	s.log.Info("visit rejected", "visit_id", id, "reason", reason)
	s.notifyTransition(id, StatusPending, StatusRejected)
	return nil
}

// Activate transitions an approved visit to active, marking entry.
// Normally driven by a credential match in the event pipeline rather
// than called directly.
func (s *Service) Activate(ctx context.Context, id string, entry time.Time) error {
	if entry.IsZero() {
		entry = time.Now().UTC()
	}
	if _, err := s.ensureCanTransition(ctx, id, StatusActive); err != nil {
		return err
	}
	if err := s.repo.Activate(ctx, id, entry); err != nil {
		return err
	}

	s.log.Info("visit activated", "visit_id", id)
	s.notifyTransition(id, StatusApproved, StatusActive)
	return nil
}

// ResolveByCredential maps a scanned raw credential to the visit
// holding its hash without touching state. The event pipeline uses
// this to link an event row to its visit before committing anything.
func (s *Service) ResolveByCredential(ctx context.Context, rawCredential string) (*Visit, error) {
	return s.repo.GetByCredentialHash(ctx, HashCredential(rawCredential))
}

// ActivateByCredential matches a scanned raw credential against stored
// hashes and activates the owning visit. Returns the visit on success.
//
// An approved visit whose scheduled window has not opened, or has
// already closed, does not activate: the credential is time-bound.
func (s *Service) ActivateByCredential(ctx context.Context, rawCredential string, at time.Time) (*Visit, error) {
	v, err := s.repo.GetByCredentialHash(ctx, HashCredential(rawCredential))
	if err != nil {
		return nil, err
	}
	if !v.Status.CanTransitionTo(StatusActive) {
		return nil, fmt.Errorf("%w: %s is %s, cannot become %s",
			ErrStateConflict, v.ID, v.Status, StatusActive)
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	if at.Before(v.ScheduledEntry) || at.After(v.ScheduledExit) {
		return nil, fmt.Errorf("%w: credential for %s outside scheduled window",
			ErrStateConflict, v.ID)
	}

	if err := s.repo.Activate(ctx, v.ID, at); err != nil {
		return nil, err
	}
	s.notifyTransition(v.ID, StatusApproved, StatusActive)
	return s.repo.GetByID(ctx, v.ID)
}

// Complete transitions an active visit to completed, marking exit.
func (s *Service) Complete(ctx context.Context, id string, exit time.Time) error {
	if exit.IsZero() {
		exit = time.Now().UTC()
	}
	if _, err := s.ensureCanTransition(ctx, id, StatusCompleted); err != nil {
		return err
	}
	if err := s.repo.Complete(ctx, id, exit); err != nil {
		return err
	}

	s.log.Info("visit completed", "visit_id", id)
	s.notifyTransition(id, StatusActive, StatusCompleted)
	return nil
}

// ExpireOverdue sweeps pending and approved visits whose scheduled exit
// has passed into expired. Returns how many were transitioned.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("overdue visits expired", "count", count)
	}
	return count, nil
}

package visit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockRepository is an in-memory Repository that mirrors the conditional
// transition semantics of the SQLite implementation.
type MockRepository struct {
	mu     sync.Mutex
	visits map[string]*Visit
}

func NewMockRepository() *MockRepository {
	return &MockRepository{visits: make(map[string]*Visit)}
}

func (m *MockRepository) Create(_ context.Context, v *Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *v
	m.visits[v.ID] = &cpy
	return nil
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.visits[id]; ok {
		cpy := *v
		return &cpy, nil
	}
	return nil, ErrNotFound
}

func (m *MockRepository) GetByCredentialHash(_ context.Context, hash string) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.visits {
		if v.CredentialHash != "" && v.CredentialHash == hash {
			cpy := *v
			return &cpy, nil
		}
	}
	return nil, ErrCredentialNotFound
}

func (m *MockRepository) List(_ context.Context, f ListFilter) ([]Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Visit
	for _, v := range m.visits {
		if f.OrgID != "" && v.OrgID != f.OrgID {
			continue
		}
		if f.BranchID != "" && v.BranchID != f.BranchID {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.HostEmployeeID != "" && v.HostEmployeeID != f.HostEmployeeID {
			continue
		}
		if f.Search != "" && !strings.Contains(v.GuestName, f.Search) && !strings.Contains(v.GuestEmail, f.Search) {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (m *MockRepository) Update(_ context.Context, v *Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.visits[v.ID]
	if !ok {
		return ErrNotFound
	}
	existing.BranchID = v.BranchID
	existing.GuestName = v.GuestName
	existing.GuestEmail = v.GuestEmail
	existing.HostEmployeeID = v.HostEmployeeID
	existing.Purpose = v.Purpose
	existing.ScheduledEntry = v.ScheduledEntry
	existing.ScheduledExit = v.ScheduledExit
	return nil
}

// transition applies a conditional status move, mirroring the SQL
// WHERE status = ? guard.
func (m *MockRepository) transition(id string, from, to Status, mutate func(*Visit)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return ErrNotFound
	}
	if v.Status != from {
		return fmt.Errorf("%w: %s cannot leave %s", ErrStateConflict, id, v.Status)
	}
	v.Status = to
	if mutate != nil {
		mutate(v)
	}
	return nil
}

func (m *MockRepository) Approve(_ context.Context, id string, ct CredentialType, hash string) error {
	return m.transition(id, StatusPending, StatusApproved, func(v *Visit) {
		v.CredentialType = ct
		v.CredentialHash = hash
	})
}

func (m *MockRepository) Reject(_ context.Context, id, reason string) error {
	return m.transition(id, StatusPending, StatusRejected, func(v *Visit) {
		v.RejectionReason = reason
	})
}

func (m *MockRepository) Activate(_ context.Context, id string, entry time.Time) error {
	return m.transition(id, StatusApproved, StatusActive, func(v *Visit) {
		v.ActualEntry = &entry
	})
}

func (m *MockRepository) Complete(_ context.Context, id string, exit time.Time) error {
	return m.transition(id, StatusActive, StatusCompleted, func(v *Visit) {
		v.ActualExit = &exit
	})
}

func (m *MockRepository) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, v := range m.visits {
		if (v.Status == StatusPending || v.Status == StatusApproved) && v.ScheduledExit.Before(now) {
			v.Status = StatusExpired
			count++
		}
	}
	return count, nil
}

func testVisit() *Visit {
	now := time.Now().UTC()
	return &Visit{
		OrgID:          "org-1",
		BranchID:       "branch-hq",
		GuestName:      "Avery Miles",
		GuestEmail:     "avery@example.com",
		HostEmployeeID: "emp-7",
		Purpose:        "vendor meeting",
		ScheduledEntry: now.Add(-time.Hour),
		ScheduledExit:  now.Add(time.Hour),
	}
}

func newTestService() (*Service, *MockRepository) {
	repo := NewMockRepository()
	return NewService(repo, nil), repo
}

func TestService_Create(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	t.Run("creates pending visit with generated ID", func(t *testing.T) {
		v := testVisit()
		if err := svc.Create(ctx, v); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if v.ID == "" {
			t.Error("ID was not generated")
		}
		if v.Status != StatusPending {
			t.Errorf("Status = %q, want pending", v.Status)
		}
	})

	t.Run("rejects missing guest name", func(t *testing.T) {
		v := testVisit()
		v.GuestName = ""
		if err := svc.Create(ctx, v); !errors.Is(err, ErrInvalidGuest) {
			t.Errorf("Create() error = %v, want ErrInvalidGuest", err)
		}
	})

	t.Run("rejects missing organization", func(t *testing.T) {
		v := testVisit()
		v.OrgID = ""
		if err := svc.Create(ctx, v); !errors.Is(err, ErrMissingOrg) {
			t.Errorf("Create() error = %v, want ErrMissingOrg", err)
		}
	})

	t.Run("rejects missing branch", func(t *testing.T) {
		v := testVisit()
		v.BranchID = ""
		if err := svc.Create(ctx, v); !errors.Is(err, ErrMissingOrg) {
			t.Errorf("Create() error = %v, want ErrMissingOrg", err)
		}
	})

	t.Run("rejects inverted window", func(t *testing.T) {
		v := testVisit()
		v.ScheduledEntry, v.ScheduledExit = v.ScheduledExit, v.ScheduledEntry
		if err := svc.Create(ctx, v); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("Create() error = %v, want ErrInvalidWindow", err)
		}
	})
}

func TestService_Approve(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	v := testVisit()
	svc.Create(ctx, v)

	t.Run("issues credential exactly once", func(t *testing.T) {
		result, err := svc.Approve(ctx, v.ID, CredentialQRCode)
		if err != nil {
			t.Fatalf("Approve() error = %v", err)
		}
		if result.RawCredential == "" {
			t.Fatal("RawCredential is empty")
		}
		if result.Visit.Status != StatusApproved {
			t.Errorf("Status = %q, want approved", result.Visit.Status)
		}

		// Credential secrecy: stored hash never equals the raw value,
		// but deterministically derives from it.
		if result.Visit.CredentialHash == result.RawCredential {
			t.Error("stored hash equals raw credential")
		}
		if result.Visit.CredentialHash != HashCredential(result.RawCredential) {
			t.Error("stored hash does not match the issued credential")
		}
	})

	t.Run("second approve conflicts", func(t *testing.T) {
		_, err := svc.Approve(ctx, v.ID, CredentialQRCode)
		if !errors.Is(err, ErrStateConflict) {
			t.Errorf("Approve() error = %v, want ErrStateConflict", err)
		}
	})

	t.Run("unknown credential type rejected", func(t *testing.T) {
		v2 := testVisit()
		svc.Create(ctx, v2)
		_, err := svc.Approve(ctx, v2.ID, "retina")
		if !errors.Is(err, ErrInvalidCredentialType) {
			t.Errorf("Approve() error = %v, want ErrInvalidCredentialType", err)
		}
	})
}

func TestService_StateMachine(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	t.Run("pending cannot activate or complete", func(t *testing.T) {
		v := testVisit()
		svc.Create(ctx, v)

		if err := svc.Activate(ctx, v.ID, time.Now()); !errors.Is(err, ErrStateConflict) {
			t.Errorf("Activate(pending) error = %v, want ErrStateConflict", err)
		}
		if err := svc.Complete(ctx, v.ID, time.Now()); !errors.Is(err, ErrStateConflict) {
			t.Errorf("Complete(pending) error = %v, want ErrStateConflict", err)
		}
	})

	t.Run("happy path runs to completion", func(t *testing.T) {
		v := testVisit()
		svc.Create(ctx, v)

		if _, err := svc.Approve(ctx, v.ID, CredentialTempCard); err != nil {
			t.Fatalf("Approve() error = %v", err)
		}
		if err := svc.Activate(ctx, v.ID, time.Now()); err != nil {
			t.Fatalf("Activate() error = %v", err)
		}
		if err := svc.Complete(ctx, v.ID, time.Now()); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}

		got, _ := svc.Get(ctx, v.ID)
		if got.Status != StatusCompleted {
			t.Errorf("Status = %q, want completed", got.Status)
		}
		if got.ActualEntry == nil || got.ActualExit == nil {
			t.Error("entry/exit timestamps not recorded")
		}
	})

	t.Run("terminal states refuse everything", func(t *testing.T) {
		v := testVisit()
		svc.Create(ctx, v)
		if err := svc.Reject(ctx, v.ID, "host unavailable"); err != nil {
			t.Fatalf("Reject() error = %v", err)
		}

		if _, err := svc.Approve(ctx, v.ID, CredentialQRCode); !errors.Is(err, ErrStateConflict) {
			t.Errorf("Approve(rejected) error = %v, want ErrStateConflict", err)
		}
		if err := svc.Reject(ctx, v.ID, "again"); !errors.Is(err, ErrStateConflict) {
			t.Errorf("Reject(rejected) error = %v, want ErrStateConflict", err)
		}
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		v := testVisit()
		svc.Create(ctx, v)
		if err := svc.Reject(ctx, v.ID, ""); !errors.Is(err, ErrMissingReason) {
			t.Errorf("Reject() error = %v, want ErrMissingReason", err)
		}
	})

	t.Run("conflict names the blocking state", func(t *testing.T) {
		v := testVisit()
		svc.Create(ctx, v)
		if err := svc.Reject(ctx, v.ID, "host unavailable"); err != nil {
			t.Fatalf("Reject() error = %v", err)
		}

		_, err := svc.Approve(ctx, v.ID, CredentialQRCode)
		if !errors.Is(err, ErrStateConflict) {
			t.Fatalf("Approve(rejected) error = %v, want ErrStateConflict", err)
		}
		if !strings.Contains(err.Error(), string(StatusRejected)) {
			t.Errorf("conflict error %q does not name the blocking state", err)
		}
	})
}

func TestService_List(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	hq := testVisit()
	svc.Create(ctx, hq)

	annex := testVisit()
	annex.BranchID = "branch-annex"
	annex.GuestName = "Rowan Park"
	svc.Create(ctx, annex)

	other := testVisit()
	other.OrgID = "org-2"
	svc.Create(ctx, other)

	t.Run("filters by organization", func(t *testing.T) {
		got, err := svc.List(ctx, ListFilter{OrgID: "org-1"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})

	t.Run("filters by branch", func(t *testing.T) {
		got, err := svc.List(ctx, ListFilter{OrgID: "org-1", BranchID: "branch-annex"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 1 || got[0].GuestName != "Rowan Park" {
			t.Errorf("got = %+v, want the annex visit only", got)
		}
	})

	t.Run("unknown status filter lists valid values", func(t *testing.T) {
		_, err := svc.List(ctx, ListFilter{Status: "parked"})
		if err == nil || !strings.Contains(err.Error(), string(StatusPending)) {
			t.Errorf("List() error = %v, want valid statuses in message", err)
		}
	})
}

func TestService_ActivateByCredential(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	v := testVisit()
	svc.Create(ctx, v)
	result, err := svc.Approve(ctx, v.ID, CredentialQRCode)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	t.Run("unknown credential is not recognised", func(t *testing.T) {
		_, err := svc.ActivateByCredential(ctx, "not-a-real-credential", time.Now())
		if !errors.Is(err, ErrCredentialNotFound) {
			t.Errorf("ActivateByCredential() error = %v, want ErrCredentialNotFound", err)
		}
	})

	t.Run("scan outside the window is refused", func(t *testing.T) {
		early := v.ScheduledEntry.Add(-time.Hour)
		_, err := svc.ActivateByCredential(ctx, result.RawCredential, early)
		if !errors.Is(err, ErrStateConflict) {
			t.Errorf("ActivateByCredential(early) error = %v, want ErrStateConflict", err)
		}
	})

	t.Run("valid scan activates the visit", func(t *testing.T) {
		got, err := svc.ActivateByCredential(ctx, result.RawCredential, time.Now().UTC())
		if err != nil {
			t.Fatalf("ActivateByCredential() error = %v", err)
		}
		if got.Status != StatusActive {
			t.Errorf("Status = %q, want active", got.Status)
		}
	})

	t.Run("replayed scan conflicts", func(t *testing.T) {
		_, err := svc.ActivateByCredential(ctx, result.RawCredential, time.Now().UTC())
		if !errors.Is(err, ErrStateConflict) {
			t.Errorf("replay error = %v, want ErrStateConflict", err)
		}
	})
}

func TestService_ExpireOverdue(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	now := time.Now().UTC()

	overdue := testVisit()
	overdue.ScheduledEntry = now.Add(-3 * time.Hour)
	overdue.ScheduledExit = now.Add(-time.Hour)
	svc.Create(ctx, overdue)
	repo.Approve(ctx, overdue.ID, CredentialQRCode, "hash-a")

	current := testVisit()
	svc.Create(ctx, current)

	finished := testVisit()
	finished.ScheduledEntry = now.Add(-5 * time.Hour)
	finished.ScheduledExit = now.Add(-4 * time.Hour)
	svc.Create(ctx, finished)
	repo.Approve(ctx, finished.ID, CredentialQRCode, "hash-b")
	repo.Activate(ctx, finished.ID, now.Add(-5*time.Hour))
	repo.Complete(ctx, finished.ID, now.Add(-4*time.Hour))

	count, err := svc.ExpireOverdue(ctx)
	if err != nil {
		t.Fatalf("ExpireOverdue() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	got, _ := svc.Get(ctx, overdue.ID)
	if got.Status != StatusExpired {
		t.Errorf("overdue visit status = %q, want expired", got.Status)
	}
	got, _ = svc.Get(ctx, current.ID)
	if got.Status != StatusPending {
		t.Errorf("current visit status = %q, want pending", got.Status)
	}
	// Completed visits are untouched regardless of their window.
	got, _ = svc.Get(ctx, finished.ID)
	if got.Status != StatusCompleted {
		t.Errorf("finished visit status = %q, want completed", got.Status)
	}
}

func TestStatus_TransitionTable(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusActive, false},
		{StatusPending, StatusCompleted, false},
		{StatusApproved, StatusActive, true},
		{StatusApproved, StatusExpired, true},
		{StatusApproved, StatusCompleted, false},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusExpired, false},
		{StatusCompleted, StatusActive, false},
		{StatusRejected, StatusApproved, false},
		{StatusExpired, StatusActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}

	for _, s := range []Status{StatusCompleted, StatusRejected, StatusExpired} {
		if !s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusApproved, StatusActive} {
		if s.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true, want false", s)
		}
	}
}

func TestGenerateCredential(t *testing.T) {
	raw1, hash1, err := GenerateCredential()
	if err != nil {
		t.Fatalf("GenerateCredential() error = %v", err)
	}
	raw2, hash2, err := GenerateCredential()
	if err != nil {
		t.Fatalf("GenerateCredential() error = %v", err)
	}

	if raw1 == raw2 {
		t.Error("two credentials are identical")
	}
	if hash1 == hash2 {
		t.Error("two credential hashes are identical")
	}
	if raw1 == hash1 {
		t.Error("hash equals raw value")
	}
	if HashCredential(raw1) != hash1 {
		t.Error("hash is not reproducible from the raw value")
	}
}

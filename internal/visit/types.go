package visit

import "time"

// Status is the lifecycle state of a guest visit.
//
// The happy path is pending → approved → active → completed.
// Rejection and expiry are terminal branches. Every transition is
// checked against the table below before any write; terminal states
// permit nothing.
type Status string

// Status constants.
const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusApproved, StatusActive,
		StatusCompleted, StatusRejected, StatusExpired,
	}
}

// transitions is the closed transition table. Absence means forbidden.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusActive, StatusExpired},
	StatusActive:   {StatusCompleted},
}

// CanTransitionTo reports whether the move from s to target is legal.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusActive,
		StatusCompleted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// CredentialType is the kind of access credential issued at approval.
type CredentialType string

// Credential types.
const (
	CredentialQRCode   CredentialType = "qr_code"
	CredentialTempCard CredentialType = "temp_card"
	CredentialFace     CredentialType = "face"
)

// IsValid reports whether c is a known credential type.
func (c CredentialType) IsValid() bool {
	switch c {
	case CredentialQRCode, CredentialTempCard, CredentialFace:
		return true
	}
	return false
}

// Visit is a scheduled guest visit.
// This matches the guest_visits table in the initial schema migration.
//
// Visits are never hard-deleted; status progresses to a terminal state
// instead. CredentialHash is a one-way hash of the issued credential;
// the raw value is returned exactly once at approval and never stored.
type Visit struct {
	ID             string `json:"id"`
	OrgID          string `json:"org_id"`
	BranchID       string `json:"branch_id"`
	GuestName      string `json:"guest_name"`
	GuestEmail     string `json:"guest_email,omitempty"`
	HostEmployeeID string `json:"host_employee_id"`
	Purpose        string `json:"purpose,omitempty"`

	Status          Status         `json:"status"`
	CredentialType  CredentialType `json:"credential_type,omitempty"`
	CredentialHash  string         `json:"-"`
	RejectionReason string         `json:"rejection_reason,omitempty"`

	ScheduledEntry time.Time  `json:"scheduled_entry"`
	ScheduledExit  time.Time  `json:"scheduled_exit"`
	ActualEntry    *time.Time `json:"actual_entry,omitempty"`
	ActualExit     *time.Time `json:"actual_exit,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows List queries. Zero values mean no constraint.
type ListFilter struct {
	OrgID          string
	BranchID       string
	Status         Status
	HostEmployeeID string

	// Search matches guest name or email as a substring.
	Search string

	Limit  int
	Offset int
}

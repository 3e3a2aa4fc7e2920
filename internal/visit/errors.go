package visit

import "errors"

// Domain errors for the visit package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, visit.ErrStateConflict) {
//	    // map to HTTP 409
//	}
var (
	// ErrNotFound is returned when a visit ID does not exist.
	ErrNotFound = errors.New("visit: not found")

	// ErrStateConflict is returned when a transition is attempted from a
	// state that does not permit it. Never a silent no-op.
	ErrStateConflict = errors.New("visit: illegal state transition")

	// ErrInvalidWindow is returned when scheduled entry is not before
	// scheduled exit.
	ErrInvalidWindow = errors.New("visit: scheduled entry must precede exit")

	// ErrInvalidGuest is returned when the guest name is missing.
	ErrInvalidGuest = errors.New("visit: guest name required")

	// ErrMissingOrg is returned when the organization or branch is
	// absent at creation. Every visit belongs to exactly one branch.
	ErrMissingOrg = errors.New("visit: organization and branch required")

	// ErrInvalidCredentialType is returned when the credential type
	// supplied at approval is not recognised.
	ErrInvalidCredentialType = errors.New("visit: invalid credential type")

	// ErrMissingReason is returned when a rejection carries no reason.
	ErrMissingReason = errors.New("visit: rejection reason required")

	// ErrCredentialNotFound is returned when no visit matches a
	// presented credential.
	ErrCredentialNotFound = errors.New("visit: credential not recognised")
)

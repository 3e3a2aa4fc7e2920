// Package visit implements the guest visit lifecycle for Passage Core.
//
// A visit moves through a closed state machine:
//
//	pending ──▶ approved ──▶ active ──▶ completed
//	   │            │
//	   ▼            ▼
//	rejected     expired        (pending can also expire)
//
// Approval issues a time-bound access credential: a random 256-bit
// value returned to the caller exactly once, with only its SHA-256
// hash persisted. When a guest later scans that credential at a
// device, the event pipeline resolves it by hash and activates the
// visit.
//
// Transitions are conditional UPDATE statements with the expected
// current status in the WHERE clause, so concurrent callers race
// safely: one wins, the rest get ErrStateConflict. Terminal states
// (rejected, completed, expired) permit no further movement.
//
// The Sweeper expires overdue pending/approved visits on an interval;
// it is the only transition not driven by a user or device action.
package visit

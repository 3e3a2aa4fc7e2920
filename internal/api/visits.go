package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/draymont/passage-core/internal/visit"
)

// createVisitRequest is the request body for POST /visits.
type createVisitRequest struct {
	OrgID          string    `json:"org_id"`
	BranchID       string    `json:"branch_id"`
	GuestName      string    `json:"guest_name"`
	GuestEmail     string    `json:"guest_email"`
	HostEmployeeID string    `json:"host_employee_id"`
	Purpose        string    `json:"purpose"`
	ScheduledEntry time.Time `json:"scheduled_entry"`
	ScheduledExit  time.Time `json:"scheduled_exit"`
}

// approveVisitRequest is the request body for POST /visits/{id}/approve.
type approveVisitRequest struct {
	CredentialType string `json:"credential_type"`
}

// approveVisitResponse returns the visit and the raw credential.
// The credential appears here exactly once; only its hash is stored.
type approveVisitResponse struct {
	Visit      *visit.Visit `json:"visit"`
	Credential string       `json:"credential"`
}

// rejectVisitRequest is the request body for POST /visits/{id}/reject.
type rejectVisitRequest struct {
	Reason string `json:"reason"`
}

// transitionRequest carries an optional effective time for manual
// activate/complete operations. Defaults to now.
type transitionRequest struct {
	At *time.Time `json:"at"`
}

// handleListVisits returns visits matching the query filters.
//
// Query parameters:
//   - org, branch: filter by organization and branch
//   - status: filter by lifecycle status
//   - host: filter by host employee id
//   - search: substring match on guest name or email
//   - limit, offset: pagination
func (s *Server) handleListVisits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := visit.Status(q.Get("status"))
	if status != "" && !status.IsValid() {
		writeBadRequest(w, "unknown status filter: "+string(status))
		return
	}

	filter := visit.ListFilter{
		OrgID:          q.Get("org"),
		BranchID:       q.Get("branch"),
		Status:         status,
		HostEmployeeID: q.Get("host"),
		Search:         q.Get("search"),
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter.Limit = limit
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			filter.Offset = offset
		}
	}

	visits, err := s.visits.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list visits")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"visits": visits, "count": len(visits)})
}

// handleGetVisit returns a single visit by ID.
func (s *Server) handleGetVisit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	v, err := s.visits.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, visit.ErrNotFound) {
			writeNotFound(w, "visit not found")
			return
		}
		writeInternalError(w, "failed to get visit")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleCreateVisit registers a new pending visit.
func (s *Server) handleCreateVisit(w http.ResponseWriter, r *http.Request) {
	var req createVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	v := &visit.Visit{
		OrgID:          req.OrgID,
		BranchID:       req.BranchID,
		GuestName:      req.GuestName,
		GuestEmail:     req.GuestEmail,
		HostEmployeeID: req.HostEmployeeID,
		Purpose:        req.Purpose,
		ScheduledEntry: req.ScheduledEntry,
		ScheduledExit:  req.ScheduledExit,
	}

	if err := s.visits.Create(r.Context(), v); err != nil {
		if isVisitValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to create visit")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleUpdateVisit edits the details of a pending visit.
func (s *Server) handleUpdateVisit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.visits.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, visit.ErrNotFound) {
			writeNotFound(w, "visit not found")
			return
		}
		writeInternalError(w, "failed to get visit")
		return
	}

	// Decode partial update onto the existing visit
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	if err := s.visits.Update(r.Context(), existing); err != nil {
		switch {
		case errors.Is(err, visit.ErrNotFound):
			writeNotFound(w, "visit not found")
		case errors.Is(err, visit.ErrStateConflict):
			writeConflict(w, err.Error())
		case isVisitValidationError(err):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to update visit")
		}
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

// handleApproveVisit approves a pending visit and issues its credential.
func (s *Server) handleApproveVisit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req approveVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.visits.Approve(r.Context(), id, visit.CredentialType(req.CredentialType))
	if err != nil {
		s.writeVisitTransitionError(w, err, "failed to approve visit")
		return
	}

	writeJSON(w, http.StatusOK, approveVisitResponse{
		Visit:      result.Visit,
		Credential: result.RawCredential,
	})
}

// handleRejectVisit rejects a pending visit with a reason.
func (s *Server) handleRejectVisit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req rejectVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.visits.Reject(r.Context(), id, req.Reason); err != nil {
		s.writeVisitTransitionError(w, err, "failed to reject visit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateVisit manually marks an approved visit as on-site.
// The usual path is a credential scan through the ingest pipeline; this
// endpoint covers reception-desk overrides.
func (s *Server) handleActivateVisit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	at, ok := decodeTransitionTime(w, r)
	if !ok {
		return
	}

	if err := s.visits.Activate(r.Context(), id, at); err != nil {
		s.writeVisitTransitionError(w, err, "failed to activate visit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCompleteVisit marks an active visit as departed.
func (s *Server) handleCompleteVisit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	at, ok := decodeTransitionTime(w, r)
	if !ok {
		return
	}

	if err := s.visits.Complete(r.Context(), id, at); err != nil {
		s.writeVisitTransitionError(w, err, "failed to complete visit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExpireOverdueVisits sweeps visits past their scheduled exit.
// The background sweeper runs this continuously; the endpoint exists for
// operational tooling.
func (s *Server) handleExpireOverdueVisits(w http.ResponseWriter, r *http.Request) {
	expired, err := s.visits.ExpireOverdue(r.Context())
	if err != nil {
		writeInternalError(w, "failed to expire overdue visits")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": expired})
}

// decodeTransitionTime reads the optional effective time from the body,
// defaulting to now. Reports false after writing an error response.
func decodeTransitionTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req transitionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return time.Time{}, false
		}
	}
	if req.At != nil {
		return *req.At, true
	}
	return time.Now().UTC(), true
}

// writeVisitTransitionError maps lifecycle errors onto HTTP responses.
func (s *Server) writeVisitTransitionError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, visit.ErrNotFound):
		writeNotFound(w, "visit not found")
	case errors.Is(err, visit.ErrStateConflict):
		writeConflict(w, err.Error())
	case isVisitValidationError(err):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("visit operation failed", "error", err)
		writeInternalError(w, fallback)
	}
}

// isVisitValidationError checks whether an error is a request validation error.
func isVisitValidationError(err error) bool {
	return errors.Is(err, visit.ErrInvalidGuest) ||
		errors.Is(err, visit.ErrMissingOrg) ||
		errors.Is(err, visit.ErrInvalidWindow) ||
		errors.Is(err, visit.ErrInvalidCredentialType) ||
		errors.Is(err, visit.ErrMissingReason)
}

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studko/internal/booking"
	"studko/internal/models"
)

type rejectRequest struct {
	Reason string `json:"reason"`
}

// rejectReason reads the optional {"reason": "..."} body.
func rejectReason(w http.ResponseWriter, r *http.Request) (string, error) {
	var req rejectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(req.Reason), nil
}

func (s *Server) handlePendingTutors(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Reviews.PendingTutors(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, items)
}

func (s *Server) handleApproveTutor(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, func(ctx context.Context, id uuid.UUID, _ string) (interface{}, error) {
		return s.deps.Reviews.ApproveTutor(ctx, id)
	})
}

func (s *Server) handleRejectTutor(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, func(ctx context.Context, id uuid.UUID, reason string) (interface{}, error) {
		return s.deps.Reviews.RejectTutor(ctx, id, reason)
	})
}

func (s *Server) handlePendingClaims(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Reviews.PendingClaims(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, items)
}

func (s *Server) handleApproveClaim(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, func(ctx context.Context, id uuid.UUID, _ string) (interface{}, error) {
		return s.deps.Reviews.ApproveClaim(ctx, id)
	})
}

func (s *Server) handleRejectClaim(w http.ResponseWriter, r *http.Request) {
	s.review(w, r, func(ctx context.Context, id uuid.UUID, reason string) (interface{}, error) {
		return s.deps.Reviews.RejectClaim(ctx, id, reason)
	})
}

func (s *Server) review(w http.ResponseWriter, r *http.Request, do func(context.Context, uuid.UUID, string) (interface{}, error)) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reason, err := rejectReason(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := do(r.Context(), id, reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Infow("Admin review", "path", r.URL.Path, "adminID", profileFrom(r.Context()).UserID)
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handlePendingBookings(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Bookings.Pending(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, items)
}

func (s *Server) handleBookingAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Resolve the lifecycle action
	var act func(context.Context, booking.Actor, uuid.UUID) (*models.Booking, error)
	switch action := chi.URLParam(r, "action"); action {
	case "confirm":
		act = s.deps.Bookings.Confirm
	case "complete":
		act = s.deps.Bookings.Complete
	case "mark-paid":
		act = s.deps.Bookings.MarkPaid
	case "cancel":
		act = s.deps.Bookings.Cancel
	default:
		writeError(w, http.StatusNotFound, "unknown booking action "+action)
		return
	}

	// Admins act as the operator
	actor := booking.Actor{UserID: profileFrom(r.Context()).UserID, Operator: true}
	b, err := act(r.Context(), actor, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Infow("Admin booking action", "bookingID", id, "action", chi.URLParam(r, "action"), "adminID", actor.UserID)
	writeJSON(w, http.StatusOK, b)
}

package server

import (
	"net/http"

	"github.com/google/uuid"

	"studko/internal/admin"
	"studko/internal/booking"
)

type calendarResponse struct {
	TutorID  uuid.UUID     `json:"tutor_id"`
	Timezone string        `json:"timezone"`
	Days     []booking.Day `json:"days"`
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days, err := s.deps.Bookings.Calendar(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarResponse{
		TutorID:  id,
		Timezone: s.deps.Bookings.Location().String(),
		Days:     days,
	})
}

func (s *Server) handleTutorApply(w http.ResponseWriter, r *http.Request) {
	var app admin.TutorApplication
	if err := decodeJSON(w, r, &app); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tutor, err := s.deps.Reviews.SubmitTutorApplication(r.Context(), profileFrom(r.Context()).UserID, app)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tutor)
}

type availabilityRequest struct {
	Date      string `json:"available_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (s *Server) handleAddAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slot, err := s.deps.Bookings.AddAvailability(r.Context(), profileFrom(r.Context()).UserID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (s *Server) handleRemoveAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Bookings.RemoveAvailability(r.Context(), profileFrom(r.Context()).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bookingRequest struct {
	AvailabilityID uuid.UUID `json:"availability_id"`
	Note           string    `json:"note"`
}

func (s *Server) handleRequestBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Validate request
	if req.AvailabilityID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "availability_id is required")
		return
	}
	b, err := s.deps.Bookings.Request(r.Context(), profileFrom(r.Context()).UserID, req.AvailabilityID, req.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Bookings.MyBookings(r.Context(), profileFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, items)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := booking.Actor{UserID: profileFrom(r.Context()).UserID}
	b, err := s.deps.Bookings.Cancel(r.Context(), actor, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBookingCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	url, err := s.deps.Bookings.Checkout(r.Context(), profileFrom(r.Context()).UserID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type claimRequest struct {
	Platform string `json:"platform"`
	PostURL  string `json:"post_url"`
}

func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	claim, err := s.deps.Reviews.SubmitClaim(r.Context(), profileFrom(r.Context()).UserID, req.Platform, req.PostURL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, claim)
}

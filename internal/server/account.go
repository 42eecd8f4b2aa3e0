package server

import (
	"net/http"

	"studko/internal/models"
)

type meResponse struct {
	*models.Profile
	AIRemaining *int `json:"ai_remaining,omitempty"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r.Context())
	resp := meResponse{Profile: profile}

	// Free users see how many AI uses are left today
	if q := s.deps.Quota; q != nil && q.Enabled() && !profile.IsPro {
		remaining, err := q.Remaining(r.Context(), profile.UserID)
		if err != nil {
			s.logger.Warnw("Failed to read AI quota", "error", err, "userID", profile.UserID)
		} else {
			resp.AIRemaining = &remaining
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubscriptionCheckout(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r.Context())
	if profile.IsPro {
		writeError(w, http.StatusConflict, "already subscribed")
		return
	}

	// Create Stripe subscription checkout
	sessionID, url, err := s.deps.Billing.CreateSubscriptionCheckout(r.Context(), profile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Infow("Subscription checkout created", "userID", profile.UserID, "sessionID", sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleConnectOnboarding(w http.ResponseWriter, r *http.Request) {
	url, err := s.deps.Notes.ConnectOnboarding(r.Context(), profileFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Inbox.Inbox(r.Context(), profileFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, items)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Inbox.MarkRead(r.Context(), profileFrom(r.Context()).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

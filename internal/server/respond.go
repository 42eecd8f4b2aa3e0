package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studko/internal/admin"
	"studko/internal/booking"
	"studko/internal/chat"
	"studko/internal/db"
	"studko/internal/gpt"
	"studko/internal/notes"
)

const maxRequestBytes = 1 << 20

var errorStatuses = []struct {
	err    error
	status int
}{
	{db.ErrNotFound, http.StatusNotFound},
	{notes.ErrFileMissing, http.StatusNotFound},
	{booking.ErrForbidden, http.StatusForbidden},
	{chat.ErrForbidden, http.StatusForbidden},
	{notes.ErrOwnNote, http.StatusForbidden},
	{notes.ErrNoAccess, http.StatusForbidden},
	{booking.ErrInvalidTransition, http.StatusConflict},
	{booking.ErrSlotUnavailable, http.StatusConflict},
	{booking.ErrTutorNotApproved, http.StatusConflict},
	{notes.ErrAlreadyPurchased, http.StatusConflict},
	{admin.ErrNotPending, http.StatusConflict},
	{admin.ErrAlreadySubmitted, http.StatusConflict},
	{db.ErrConflict, http.StatusConflict},
	{booking.ErrInvalidInput, http.StatusBadRequest},
	{admin.ErrInvalidInput, http.StatusBadRequest},
	{chat.ErrInvalidInput, http.StatusBadRequest},
	{chat.ErrQuotaExceeded, http.StatusTooManyRequests},
	{notes.ErrPayoutsIncomplete, http.StatusBadGateway},
	{gpt.ErrEmptyResponse, http.StatusBadGateway},
	{notes.ErrStorageDisabled, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeList encodes a nil slice as an empty JSON array.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail maps a service error to its status. Unknown errors are logged and
// hidden from the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var quota *chat.QuotaError
	if errors.As(err, &quota) && quota.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(quota.RetryAfter.Seconds()))))
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Errorw("Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		if status == http.StatusInternalServerError {
			writeError(w, status, "internal error")
			return
		}
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

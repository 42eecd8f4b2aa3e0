package server

import (
	"net/http"

	"studko/internal/notes"
)

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Notes.List(r.Context(), r.URL.Query().Get("subject"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, items)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := s.deps.Notes.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleNoteCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.deps.Notes.Checkout(r.Context(), profileFrom(r.Context()).UserID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNoteDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	url, err := s.deps.Notes.DownloadURL(r.Context(), profileFrom(r.Context()).UserID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":        url,
		"expires_in": int(notes.DownloadTTL.Seconds()),
	})
}

package server

import (
	"net/http"

	"github.com/google/uuid"

	"studko/internal/chat"
)

type chatRequest struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Message        string    `json:"message"`
}

// handleChatStream answers over SSE. Errors before the stream opens are
// plain JSON responses; later ones are sent as an error event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Prepare the event stream, nothing is sent before Start
	sse, err := chat.NewSSEWriter(w)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	userID := profileFrom(r.Context()).UserID
	if err := s.deps.Chat.Stream(r.Context(), userID, req.ConversationID, req.Message, sse); err != nil {
		if sse.Started() {
			s.logger.Warnw("Chat stream ended with error", "error", err, "userID", userID)
			return
		}
		s.fail(w, r, err)
	}
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Chat.Conversations(r.Context(), profileFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, items)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.deps.Chat.Messages(r.Context(), profileFrom(r.Context()).UserID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeList(w, items)
}

type studyRequest struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	Count   int    `json:"count"`
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	var req studyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	set, err := s.deps.Chat.Flashcards(r.Context(), profileFrom(r.Context()).UserID, req.Subject, req.Text, req.Count)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req studyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	questions, err := s.deps.Chat.Quiz(r.Context(), profileFrom(r.Context()).UserID, req.Subject, req.Text, req.Count)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subject": req.Subject, "questions": questions})
}

type quizResultRequest struct {
	Subject string `json:"subject"`
	Score   int    `json:"score"`
	Total   int    `json:"total"`
}

func (s *Server) handleQuizResult(w http.ResponseWriter, r *http.Request) {
	var req quizResultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.deps.Chat.SaveQuizResult(r.Context(), profileFrom(r.Context()).UserID, req.Subject, req.Score, req.Total)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// SSEWriter streams events as Server-Sent Events:
//
//	data: {"conversation_id":"..."}
//	data: {"content":"..."}
//	data: {"error":"..."}
//	data: [DONE]
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming is not supported by the response writer")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Started reports whether headers have been sent.
func (s *SSEWriter) Started() bool {
	return s.started
}

func (s *SSEWriter) Start(conversationID uuid.UUID) error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
	return s.event(map[string]string{"conversation_id": conversationID.String()})
}

func (s *SSEWriter) Delta(content string) error {
	return s.event(map[string]string{"content": content})
}

func (s *SSEWriter) Fail(message string) error {
	return s.event(map[string]string{"error": message})
}

func (s *SSEWriter) Done() error {
	return s.raw("[DONE]")
}

func (s *SSEWriter) event(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.raw(string(payload))
}

func (s *SSEWriter) raw(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

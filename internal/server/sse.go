package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// sseRetry is the reconnect delay suggested to clients.
const sseRetry = 3 * time.Second

// SSEWriter writes a text/event-stream response. Events carry increasing ids so a
// reconnecting client can report the last one it saw.
type SSEWriter struct {
	out  io.Writer
	ctrl *http.ResponseController
	seq  uint64
}

// NewSSEWriter commits the stream headers. It fails when the response cannot be flushed.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &SSEWriter{out: w, ctrl: http.NewResponseController(w)}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", sseRetry.Milliseconds()); err != nil {
		return nil, err
	}
	if err := s.ctrl.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	return s, nil
}

// WriteEvent sends one named event with a JSON payload.
func (s *SSEWriter) WriteEvent(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	s.seq++
	if _, err := fmt.Fprintf(s.out, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, name, payload); err != nil {
		return err
	}
	return s.ctrl.Flush()
}

// WriteError sends an error event. The stream is usually closed right after, so
// a write failure is not reported.
func (s *SSEWriter) WriteError(message string) {
	_ = s.WriteEvent("error", errorBody{Error: message})
}

// WriteComment sends a keep-alive comment.
func (s *SSEWriter) WriteComment() error {
	if _, err := io.WriteString(s.out, ": keep-alive\n\n"); err != nil {
		return err
	}
	return s.ctrl.Flush()
}

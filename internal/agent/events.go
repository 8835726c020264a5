package agent

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	doneFrame  = "[DONE]"
	errorFrame = "Error processing request"
)

// IOWriteError reports a failure writing to the client connection.
type IOWriteError struct {
	Err error
}

func (e *IOWriteError) Error() string {
	return fmt.Sprintf("agent: write to client: %v", e.Err)
}

func (e *IOWriteError) Unwrap() error {
	return e.Err
}

// eventStream writes "data: <text>\n\n" frames and flushes each one.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (s *eventStream) open() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *eventStream) send(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return &IOWriteError{Err: err}
	}

	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return &IOWriteError{Err: err}
	}

	return nil
}

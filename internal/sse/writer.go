package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// EventWriter streams JSON payloads to one client as server-sent
// events. Headers are written lazily on the first Send so callers can
// still return a plain error response when nothing has been streamed.
type EventWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
}

func NewEventWriter(w http.ResponseWriter) (*EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &EventWriter{w: w, flusher: flusher}, nil
}

// Started reports whether any event has reached the wire.
func (ew *EventWriter) Started() bool {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return ew.started
}

func (ew *EventWriter) Send(event any) error {
	ew.mu.Lock()
	defer ew.mu.Unlock()

	if ew.closed {
		return fmt.Errorf("event writer closed")
	}
	if !ew.started {
		h := ew.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		ew.w.WriteHeader(http.StatusOK)
		ew.started = true
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(ew.w, "data: %s\n\n", payload); err != nil {
		ew.closed = true
		return err
	}
	ew.flusher.Flush()
	return nil
}

package sse

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

// Event names written on job streams.
const (
	EventTransition = "transition"
	EventEnd        = "end"
	EventError      = "error"
)

// Stream writes the text/event-stream wire format to one response.
type Stream struct {
	w http.ResponseWriter
	f http.Flusher
}

// Open sends the stream headers. Write deadlines are lifted since streams
// outlive the server's WriteTimeout.
func Open(w http.ResponseWriter) (*Stream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}
	// Not every writer supports deadlines; streaming still works without.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Stream{w: w, f: f}, nil
}

// Event writes one event. Multi-line data is split into data lines.
func (s *Stream) Event(name, id string, data []byte) error {
	var b bytes.Buffer
	if id != "" {
		fmt.Fprintf(&b, "id: %s\n", id)
	}
	if name != "" {
		fmt.Fprintf(&b, "event: %s\n", name)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		b.WriteString("data: ")
		b.Write(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if _, err := s.w.Write(b.Bytes()); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// KeepAlive writes a comment line so proxies keep the connection open.
func (s *Stream) KeepAlive() error {
	if _, err := fmt.Fprintf(s.w, ": keepalive %d\n\n", time.Now().Unix()); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

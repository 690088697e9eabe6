package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// SSEWriter is a Sink that writes events as server-sent events. Each event
// carries an increasing id and its type as the SSE event name.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
	nextID  int64
}

// NewSSEWriter sets the event-stream headers on w.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) Send(e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	s.nextID++
	if err := writeSSEWithID(s.w, s.nextID, string(e.Type()), string(data)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}

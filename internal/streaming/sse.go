package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// WriteSSE copies the stream to w until the stream closes or ctx (the
// request context) is done. A departing client closes the stream.
func WriteSSE(ctx context.Context, w http.ResponseWriter, s *Stream) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported by response writer")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				s.Close()
				return err
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	if ev.Type == EventHeartbeat {
		_, err := fmt.Fprint(w, ": heartbeat\n\n")
		return err
	}

	var data string
	switch v := ev.Data.(type) {
	case string:
		data = v
	case json.RawMessage:
		data = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", ev.Type, err)
		}
		data = string(b)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", ev.Type)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := fmt.Fprint(w, b.String())
	return err
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/pkg/metrics"
)

// DefaultHeartbeat is used when a handler is built without an interval.
const DefaultHeartbeat = 30 * time.Second

// sseWriter writes Server-Sent Events to one client.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// openSSE writes the event stream headers. It fails when the response
// cannot be flushed incrementally.
func openSSE(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.sendRaw(event, jsonData)
}

func (s *sseWriter) sendRaw(event string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// pump forwards updates to the client until the client leaves or the
// updates channel closes. A closed channel with a non-nil errFn result is
// reported as an error event. Heartbeats keep idle proxies from dropping
// the connection.
func pump[T any](ctx context.Context, s *sseWriter, heartbeat time.Duration, updates <-chan T, errFn func() error, emit func(T) error) error {
	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case v, ok := <-updates:
			if !ok {
				if err := errFn(); err != nil {
					s.send("error", &model.ErrorEvent{
						Code:    "subscription_failed",
						Message: "live updates stopped; reload to reconnect",
					})
					return err
				}
				return nil
			}
			if err := emit(v); err != nil {
				return err
			}

		case <-ticker.C:
			if err := s.send("heartbeat", &model.HeartbeatEvent{Timestamp: time.Now()}); err != nil {
				return err
			}
		}
	}
}

// changeFilter sends an event only when its payload differs from the
// previous one sent under the same name.
type changeFilter struct {
	s    *sseWriter
	last map[string][]byte
}

func newChangeFilter(s *sseWriter) *changeFilter {
	return &changeFilter{s: s, last: make(map[string][]byte)}
}

func (c *changeFilter) send(event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if bytes.Equal(c.last[event], jsonData) {
		return nil
	}
	c.last[event] = jsonData
	return c.s.sendRaw(event, jsonData)
}

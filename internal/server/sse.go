// SSE Implementation Note:
//
// This file carries a small custom Server-Sent Events writer rather than a
// third-party package. The implementation is simple, integrates directly
// with the orchestrator's RunState.Subscribe, and needs no generic
// framework machinery for the single per-run stream shape this service
// exposes.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentmesh/runtime/internal/event"
	"github.com/agentmesh/runtime/internal/logging"
)

// sseHeartbeatInterval is the interval for SSE keep-alive comments.
const sseHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer, or an error if the underlying
// ResponseWriter doesn't support flushing.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

// writeEvent writes one SSE event.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// streamRun pipes a run's events to the client as SSE until the run's
// subscriber channel closes (RunState.Finish), the client disconnects, or
// a heartbeat ticker keeps the connection alive across quiet spans. The
// orchestrator keeps driving the run to completion in its own goroutine
// regardless of whether the client stays connected, so disconnecting
// mid-stream never truncates the persisted assistant reply (spec §8's SSE
// disconnect invariant).
func streamRun(w http.ResponseWriter, r *http.Request, sub <-chan event.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeCodedError(w, ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if err := sse.writeEvent(string(e.Type), e); err != nil {
				logging.Warn().Err(err).Str("eventType", string(e.Type)).Msg("server: sse write failed, client likely gone")
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

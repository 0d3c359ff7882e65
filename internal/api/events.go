package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avgate/avgate/internal/sse"
)

// handleEventStream serves one SSE channel until the client disconnects or
// the manager shuts down.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	channel := sse.Channel(chi.URLParam(r, "channel"))

	err := s.events.ServeStream(r.Context(), w, channel)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, sse.ErrUnknownChannel):
		writeNotFound(w, "unknown event channel: "+string(channel))
	case errors.Is(err, sse.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event streams shutting down")
	case errors.Is(err, sse.ErrStreamingUnsupported):
		writeInternalError(w, "streaming unsupported by connection")
	default:
		// Stream ended mid-flight; headers are already written.
		s.logger.Debug("Event stream closed", "channel", channel, "error", err)
	}
}

// handleEventStats reports fan-out counters and subscriber counts.
func (s *Server) handleEventStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.events.Stats())
}

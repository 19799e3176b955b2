package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/api/shared"
	"github.com/studybuddy/studybuddy-api/internal/events"
)

// EventsHandler streams job progress to clients over server-sent
// events. Delivery is at-most-once; clients that need certainty poll
// the job record.
type EventsHandler struct {
	broker  *events.Broker
	history *events.History
}

// NewEventsHandler creates a new EventsHandler. history may be nil.
func NewEventsHandler(broker *events.Broker, history *events.History) *EventsHandler {
	return &EventsHandler{
		broker:  broker,
		history: history,
	}
}

// StreamJob handles GET /api/jobs/{id}/events. Recorded history is
// replayed first so a subscriber connecting mid-run catches up, then
// live events follow until the client disconnects or the run ends.
func (h *EventsHandler) StreamJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	// Subscribe before replaying history so no live event slips through
	// the gap.
	ch, unsubscribe := h.broker.Subscribe(events.JobRoom(jobID))
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if h.history != nil {
		recorded := h.history.Recent(r.Context(), jobID)
		// Recent returns newest first; replay oldest first.
		for i := len(recorded) - 1; i >= 0; i-- {
			writeEvent(w, recorded[i])
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			writeEvent(w, event)
			flusher.Flush()
			if event.Type != events.TypeProgress {
				// Terminal event; the run is over.
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event events.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, raw)
}

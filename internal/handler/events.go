package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HandleEvents streams a notebook's results and state changes as
// Server-Sent Events. The stream stays open until the client disconnects.
//
// Each event is written as
//
//	event: result|state
//	data: {...}
//
// so an EventSource on the front end can route on the event name.
func (h *ExecutionHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
			Code:    "internal",
			Message: "streaming is not supported",
		}})
		return
	}

	events, cancel := h.svc.Subscribe(notebookID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event",
					slog.String("notebook", notebookID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if _, err := w.Write([]byte("event: " + string(ev.Type) + "\ndata: ")); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

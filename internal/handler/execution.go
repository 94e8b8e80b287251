package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lunalab/luna-kernel/internal/apperror"
	"github.com/lunalab/luna-kernel/internal/service"
)

// ExecutionHandler serves the notebook execution endpoints.
type ExecutionHandler struct {
	svc    *service.NotebookService
	logger *slog.Logger
}

func NewExecutionHandler(svc *service.NotebookService, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{svc: svc, logger: logger}
}

type submitRequest struct {
	CellID string `json:"cellId"`
	Source string `json:"source"`
}

type submitResponse struct {
	SequenceNumber uint64 `json:"sequenceNumber"`
}

// HandleSubmit enqueues a cell for execution. The 202 response carries
// only the assigned sequence number; the result arrives on the event
// stream.
func (h *ExecutionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("body", "invalid JSON in request body"))
		return
	}

	seq, err := h.svc.Submit(r.Context(), notebookID, req.CellID, req.Source)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{SequenceNumber: seq})
}

// HandleInterrupt asks the notebook's session to stop its in-flight
// execution. 202 because interruption is best effort and asynchronous.
func (h *ExecutionHandler) HandleInterrupt(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	if err := h.svc.Interrupt(notebookID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleOpen creates the notebook's session if it does not exist yet.
func (h *ExecutionHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	if err := h.svc.Open(notebookID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClose shuts the notebook's session down. With ?wait=true the
// response is held until queued work has resolved.
func (h *ExecutionHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	wait := r.URL.Query().Get("wait") == "true"

	if err := h.svc.Close(r.Context(), notebookID, wait); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory lists a notebook's persisted execution records.
func (h *ExecutionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := h.svc.ListHistory(r.Context(), notebookID, limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": records})
}

// HandleArtifact serves one persisted artifact's raw bytes. Today every
// artifact is a rendered figure, so the content type is always PNG.
func (h *ExecutionHandler) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("index", "artifact index must be an integer"))
		return
	}

	data, err := h.svc.GetArtifact(r.Context(), executionID, index)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandlePurgeHistory deletes a notebook's entire execution history.
func (h *ExecutionHandler) HandlePurgeHistory(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")

	deleted, err := h.svc.PurgeHistory(r.Context(), notebookID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("history purged",
		slog.String("notebook", notebookID),
		slog.Int64("deleted", deleted),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Package service contains the business logic layer: the boundary
// between the controlling surface (HTTP handlers here, but nothing in
// this package knows about HTTP) and the execution core.
//
// NotebookService validates submissions, routes them through the session
// registry, fans results and state changes out to subscribers, and
// records results into the history store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lunalab/luna-kernel/internal/apperror"
	"github.com/lunalab/luna-kernel/internal/model"
	"github.com/lunalab/luna-kernel/internal/repository"
	"github.com/lunalab/luna-kernel/internal/session"
)

const (
	// MaxSourceLength bounds one cell's source (~100KB of code).
	MaxSourceLength = 100000
	// subscriberBuffer is how many undelivered events a subscriber may
	// accumulate before further events are dropped for it. Dropping keeps
	// a slow consumer from ever blocking a session worker.
	subscriberBuffer = 256
)

// EventType discriminates Event payloads.
type EventType string

const (
	EventResult EventType = "result"
	EventState  EventType = "state"
)

// Event is one item on a subscriber's stream: either an execution result
// or a cell state change, in per-notebook order.
type Event struct {
	Type   EventType              `json:"type"`
	Result *model.ExecutionResult `json:"result,omitempty"`
	State  *model.StateChange     `json:"state,omitempty"`
}

// NotebookService is the high-level API for running code cells per
// notebook.
type NotebookService struct {
	registry *session.Registry
	history  repository.ExecutionHistoryRepository // nil disables history
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[int]chan Event // notebook id → subscriber id → channel
	nextID int
}

// NewNotebookService wires a registry with the service's own sinks.
// history may be nil, in which case results are delivered but not
// persisted.
func NewNotebookService(cfg session.Config, history repository.ExecutionHistoryRepository, logger *slog.Logger) *NotebookService {
	s := &NotebookService{
		history: history,
		logger:  logger,
		subs:    make(map[string]map[int]chan Event),
	}
	s.registry = session.NewRegistry(cfg, logger, s.handleResult, s.handleState)
	return s
}

// Submit validates the code unit, resolves (or lazily creates) the
// notebook's session, and enqueues it. Returns the assigned sequence
// number; the result arrives later on the notebook's event stream.
func (s *NotebookService) Submit(ctx context.Context, notebookID, cellID, source string) (uint64, error) {
	if strings.TrimSpace(notebookID) == "" {
		return 0, apperror.ValidationFailed("notebookId", "notebook ID is required")
	}
	if strings.TrimSpace(cellID) == "" {
		return 0, apperror.ValidationFailed("cellId", "cell ID is required")
	}
	if strings.TrimSpace(source) == "" {
		return 0, apperror.ValidationFailed("source", "source code is required")
	}
	if len(source) > MaxSourceLength {
		return 0, apperror.ValidationFailed("source",
			fmt.Sprintf("source code must be %d characters or less", MaxSourceLength))
	}

	sess, err := s.registry.GetOrCreate(notebookID)
	if err != nil {
		return 0, err
	}
	seq, err := sess.Submit(cellID, source)
	if err != nil {
		return 0, err
	}

	s.logger.Info("execution submitted",
		slog.String("notebook", notebookID),
		slog.String("cell", cellID),
		slog.Uint64("sequence", seq),
	)
	return seq, nil
}

// Interrupt stops the notebook's in-flight execution, if any.
func (s *NotebookService) Interrupt(notebookID string) error {
	sess, ok := s.registry.Get(notebookID)
	if !ok {
		return apperror.NotFound("session", notebookID)
	}
	sess.Interrupt()
	return nil
}

// Open ensures a session exists for the notebook. Idempotent — opening
// an already-open notebook returns the existing session untouched.
func (s *NotebookService) Open(notebookID string) error {
	if strings.TrimSpace(notebookID) == "" {
		return apperror.ValidationFailed("notebookId", "notebook ID is required")
	}
	_, err := s.registry.GetOrCreate(notebookID)
	return err
}

// Close shuts the notebook's session down, optionally waiting for
// in-flight work to resolve first.
func (s *NotebookService) Close(ctx context.Context, notebookID string, waitForIdle bool) error {
	return s.registry.Close(ctx, notebookID, waitForIdle)
}

// CloseAll shuts down every open session. Called on process shutdown.
func (s *NotebookService) CloseAll(ctx context.Context) error {
	return s.registry.CloseAll(ctx)
}

// Subscribe registers for a notebook's result and state events. The
// returned cancel function must be called to release the subscription;
// the channel is closed by it.
func (s *NotebookService) Subscribe(notebookID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[notebookID] == nil {
		s.subs[notebookID] = make(map[int]chan Event)
	}
	s.subs[notebookID][id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if m, ok := s.subs[notebookID]; ok {
			if _, live := m[id]; live {
				delete(m, id)
				close(ch)
			}
			if len(m) == 0 {
				delete(s.subs, notebookID)
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// ListHistory returns a notebook's persisted execution records.
func (s *NotebookService) ListHistory(ctx context.Context, notebookID string, limit, offset int) ([]model.ExecutionRecord, error) {
	if s.history == nil {
		return nil, apperror.Forbidden("execution history is not enabled")
	}
	return s.history.ListByNotebook(ctx, notebookID, repository.ListOptions{Limit: limit, Offset: offset})
}

// GetArtifact returns one persisted artifact's raw bytes.
func (s *NotebookService) GetArtifact(ctx context.Context, executionID string, index int) ([]byte, error) {
	if s.history == nil {
		return nil, apperror.Forbidden("execution history is not enabled")
	}
	return s.history.GetArtifact(ctx, executionID, index)
}

// PurgeHistory deletes a notebook's execution history.
func (s *NotebookService) PurgeHistory(ctx context.Context, notebookID string) (int64, error) {
	if s.history == nil {
		return 0, apperror.Forbidden("execution history is not enabled")
	}
	return s.history.Purge(ctx, notebookID)
}

// handleResult runs on a session worker: record to history, then fan out.
// A store failure is logged, never allowed to affect delivery.
func (s *NotebookService) handleResult(res model.ExecutionResult) {
	if s.history != nil {
		if _, err := s.history.Record(context.Background(), &res); err != nil {
			s.logger.Error("failed to record execution result",
				slog.String("notebook", res.NotebookID),
				slog.String("cell", res.CellID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.publish(res.NotebookID, Event{Type: EventResult, Result: &res})
}

func (s *NotebookService) handleState(sc model.StateChange) {
	s.publish(sc.NotebookID, Event{Type: EventState, State: &sc})
}

// publish delivers an event to every subscriber of the notebook without
// ever blocking: a subscriber whose buffer is full loses the event.
func (s *NotebookService) publish(notebookID string, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs[notebookID] {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("dropping event for slow subscriber",
				slog.String("notebook", notebookID),
				slog.Int("subscriber", id),
			)
		}
	}
}

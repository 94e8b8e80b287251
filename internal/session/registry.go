package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lunalab/luna-kernel/internal/apperror"
)

// Registry is the lifecycle authority for sessions: the only component
// allowed to create or destroy one. At most one live session exists per
// notebook id — creating twice for the same id returns the existing
// session, never a duplicate that would silently fork the namespace.
type Registry struct {
	cfg      Config
	logger   *slog.Logger
	onResult ResultSink
	onState  StateSink

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry. The sinks are shared by every
// session it creates.
func NewRegistry(cfg Config, logger *slog.Logger, onResult ResultSink, onState StateSink) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		onResult: onResult,
		onState:  onState,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for the notebook, creating one
// with an empty namespace if needed. A session lost to forced termination
// is replaced here — its namespace is gone either way.
func (r *Registry) GetOrCreate(notebookID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, apperror.SubmissionRejected(notebookID, "kernel is shutting down")
	}
	if s, ok := r.sessions[notebookID]; ok {
		if !s.Failed() {
			return s, nil
		}
		r.logger.Warn("replacing failed session", slog.String("notebook", notebookID))
	}

	s, err := New(notebookID, r.cfg, r.logger, r.onResult, r.onState)
	if err != nil {
		return nil, fmt.Errorf("registry: creating session for %s: %w", notebookID, err)
	}
	r.sessions[notebookID] = s
	r.logger.Info("session created", slog.String("notebook", notebookID))
	return s, nil
}

// Get returns the live session for the notebook, if any.
func (r *Registry) Get(notebookID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[notebookID]
	return s, ok
}

// Close shuts down the notebook's session. With waitForIdle it blocks
// until in-flight and queued work has resolved (or ctx is done) before
// returning; otherwise shutdown proceeds in the background.
func (r *Registry) Close(ctx context.Context, notebookID string, waitForIdle bool) error {
	r.mu.Lock()
	s, ok := r.sessions[notebookID]
	if ok {
		delete(r.sessions, notebookID)
	}
	r.mu.Unlock()

	if !ok {
		return apperror.NotFound("session", notebookID)
	}

	s.Shutdown()
	if waitForIdle {
		return s.AwaitIdle(ctx)
	}
	return nil
}

// CloseAll shuts down every open session and waits for each. Invoked on
// process shutdown; the registry refuses new sessions afterward.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Shutdown()
	}
	var firstErr error
	for _, s := range all {
		if err := s.AwaitIdle(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("registry: waiting for session %s: %w", s.NotebookID(), err)
		}
	}
	return firstErr
}

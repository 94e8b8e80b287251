// Package session implements the execution core: per-notebook execution
// sessions that serialize code units against a persistent namespace, and
// the registry that owns their lifecycle.
//
// Scheduling model: one dedicated worker goroutine per open notebook —
// parallel across notebooks, strictly sequential within one. Submission
// never blocks the caller; results and state changes are delivered
// asynchronously through the sinks supplied at construction, always from
// the session's own worker (which is what preserves per-notebook result
// ordering).
package session

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/lunalab/luna-kernel/internal/apperror"
	"github.com/lunalab/luna-kernel/internal/capture"
	"github.com/lunalab/luna-kernel/internal/interp"
	"github.com/lunalab/luna-kernel/internal/model"
)

// Interrupt causes, visible inside the *goja.InterruptedError.
var (
	ErrInterrupted      = errors.New("session: execution interrupted")
	ErrDeadlineExceeded = errors.New("session: execution deadline exceeded")
	ErrShuttingDown     = errors.New("session: shutting down")
)

// ResultSink receives each ExecutionResult exactly once, in sequence
// order for any one notebook. It runs on the session worker and must not
// block.
type ResultSink func(model.ExecutionResult)

// StateSink receives cell state changes (queued/running/done). Same
// delivery rules as ResultSink.
type StateSink func(model.StateChange)

// Config tunes the cancellation controller.
type Config struct {
	// ExecTimeout is the hard timeout backstop per execution. Generous by
	// default — minutes, not seconds. Zero or negative disables it.
	ExecTimeout time.Duration
	// Grace is how long an interrupted execution gets to actually stop
	// before the worker is abandoned and the session failed.
	Grace time.Duration
}

// DefaultConfig returns the tuning used by the server binary.
func DefaultConfig() Config {
	return Config{
		ExecTimeout: 10 * time.Minute,
		Grace:       5 * time.Second,
	}
}

// Session owns one notebook's persistent namespace and executes submitted
// code units against it, one at a time, in sequence order.
type Session struct {
	notebookID string
	cfg        Config
	logger     *slog.Logger
	it         *interp.Interp
	onResult   ResultSink
	onState    StateSink

	mu        sync.Mutex
	cond      *sync.Cond
	queue     requestQueue
	nextSeq   uint64 // next sequence number Submit assigns
	nextRun   uint64 // sequence number the worker executes next
	state     model.SessionState
	execCount int
	failed    bool
	wd        *watchdog // non-nil while an execution is in flight

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a session with an empty namespace and starts its worker.
func New(notebookID string, cfg Config, logger *slog.Logger, onResult ResultSink, onState StateSink) (*Session, error) {
	it, err := interp.New()
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", notebookID, err)
	}
	if onResult == nil {
		onResult = func(model.ExecutionResult) {}
	}
	if onState == nil {
		onState = func(model.StateChange) {}
	}
	s := &Session{
		notebookID: notebookID,
		cfg:        cfg,
		logger:     logger.With(slog.String("notebook", notebookID)),
		it:         it,
		onResult:   onResult,
		onState:    onState,
		nextSeq:    1,
		nextRun:    1,
		state:      model.SessionStateIdle,
		done:       make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s, nil
}

// NotebookID returns the owning notebook's id.
func (s *Session) NotebookID() string { return s.notebookID }

// State returns the session's current lifecycle state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExecutionCount returns the number of completed-or-errored executions
// (plus interrupted ones whose evaluation had begun).
func (s *Session) ExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execCount
}

// Failed reports whether the session was lost to forced termination.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Submit assigns the next sequence number to the given code unit and
// enqueues it. The assignment and the enqueue happen atomically, so
// submission order is execution order. Results arrive via the sink.
func (s *Session) Submit(cellID, source string) (uint64, error) {
	s.mu.Lock()
	if err := s.acceptingLocked(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	req := model.ExecutionRequest{
		NotebookID:     s.notebookID,
		CellID:         cellID,
		SourceCode:     source,
		SequenceNumber: s.nextSeq,
	}
	s.nextSeq++
	heap.Push(&s.queue, req)
	s.cond.Signal()
	s.mu.Unlock()

	s.emitState(req, model.CellStateQueued)
	return req.SequenceNumber, nil
}

// Enqueue accepts a request whose sequence number was already assigned by
// the caller. Requests may arrive out of order; the worker still applies
// them in strict sequence order, waiting for gaps to fill.
func (s *Session) Enqueue(req model.ExecutionRequest) error {
	s.mu.Lock()
	if err := s.acceptingLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if req.SequenceNumber >= s.nextSeq {
		s.nextSeq = req.SequenceNumber + 1
	}
	heap.Push(&s.queue, req)
	s.cond.Signal()
	s.mu.Unlock()

	s.emitState(req, model.CellStateQueued)
	return nil
}

func (s *Session) acceptingLocked() error {
	if s.failed {
		return apperror.SessionFailed(s.notebookID)
	}
	if s.state == model.SessionStateShuttingDown {
		return apperror.SubmissionRejected(s.notebookID, "session is shutting down")
	}
	return nil
}

// Interrupt signals the in-flight execution, if any, to abort at the next
// interpreter checkpoint. No-op while idle. Partially-applied namespace
// state from an interrupted execution is kept as-is, matching
// conventional interactive-interpreter semantics.
func (s *Session) Interrupt() {
	s.mu.Lock()
	wd := s.wd
	running := s.state == model.SessionStateRunning
	s.mu.Unlock()
	if !running || wd == nil {
		return
	}
	s.logger.Info("interrupt requested")
	s.it.Interrupt(ErrInterrupted)
	wd.armGrace()
}

// Shutdown refuses further submissions, interrupts any in-flight
// execution, and lets the worker drain: queued-but-unstarted requests are
// reported interrupted (without advancing the execution counter).
// Idempotent. Use AwaitIdle to observe completion.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.state == model.SessionStateShuttingDown || s.failed {
		s.mu.Unlock()
		return
	}
	wasRunning := s.state == model.SessionStateRunning
	s.state = model.SessionStateShuttingDown
	wd := s.wd
	s.cond.Broadcast()
	s.mu.Unlock()

	s.logger.Info("session shutting down")
	if wasRunning {
		s.it.Interrupt(ErrShuttingDown)
		if wd != nil {
			wd.armGrace()
		}
	}
}

// AwaitIdle blocks until the worker has exited (all in-flight and queued
// work resolved) or the context is done.
func (s *Session) AwaitIdle(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the worker loop: a single consumer draining the queue in strict
// sequence order.
func (s *Session) run() {
	defer s.finish()
	for {
		s.mu.Lock()
		for !s.wakeableLocked() {
			s.cond.Wait()
		}
		if s.failed {
			s.mu.Unlock()
			return
		}
		if s.state == model.SessionStateShuttingDown {
			flushed := s.drainQueueLocked()
			s.mu.Unlock()
			s.reportFlushed(flushed)
			return
		}
		req := heap.Pop(&s.queue).(model.ExecutionRequest)
		s.nextRun = req.SequenceNumber + 1
		s.state = model.SessionStateRunning
		s.mu.Unlock()

		ok := s.runOne(req)

		s.mu.Lock()
		if !ok {
			// forced termination reported the request and failed the
			// session; this goroutine is done
			s.mu.Unlock()
			return
		}
		if s.state == model.SessionStateRunning {
			s.state = model.SessionStateIdle
		}
		s.mu.Unlock()
	}
}

func (s *Session) wakeableLocked() bool {
	if s.failed || s.state == model.SessionStateShuttingDown {
		return true
	}
	return s.queue.Len() > 0 && s.queue.head() == s.nextRun
}

// runOne executes a single request with the capture adapter active for
// the duration. Returns false when the execution was abandoned by forced
// termination.
func (s *Session) runOne(req model.ExecutionRequest) bool {
	h := capture.Begin()
	s.it.Redirect(h.Stdout(), h.Stderr())
	start := time.Now()

	wd := newWatchdog(s, req, h, start)
	s.mu.Lock()
	s.wd = wd
	s.mu.Unlock()
	wd.arm()

	// The watchdog is registered before the running state goes out, so an
	// interrupt issued in response to the state change always lands.
	s.emitState(req, model.CellStateRunning)

	val, err := s.it.Eval(req.SourceCode)

	claimed := wd.claim()
	wd.disarm()
	s.mu.Lock()
	s.wd = nil
	s.mu.Unlock()
	s.it.Redirect(nil, nil)

	if !claimed {
		s.logger.Warn("abandoned execution returned after forced termination",
			slog.String("cell", req.CellID),
			slog.Uint64("sequence", req.SequenceNumber),
		)
		return false
	}

	res := model.ExecutionResult{
		NotebookID:     s.notebookID,
		CellID:         req.CellID,
		SequenceNumber: req.SequenceNumber,
	}

	switch {
	case err == nil:
		// REPL convention: echo the completion value unless it is
		// undefined or null.
		if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
			fmt.Fprintln(h.Stdout(), val.String())
		}
		res.Status = model.StatusCompleted
		res.ExecutionCount = s.bumpCount()
	default:
		summary, interrupted := interp.Summarize(err)
		if interrupted {
			s.it.ClearInterrupt()
			res.Status = model.StatusInterrupted
			// evaluation had visibly begun, so the counter advances even
			// though the cell was stopped
			res.ExecutionCount = s.bumpCount()
		} else {
			res.Status = model.StatusErrored
			res.Error = summary
			res.ExecutionCount = s.bumpCount()
		}
	}

	// Always release the capture, whatever the outcome above.
	stdout, stderr, artifacts := h.End()
	res.Stdout = stdout
	res.Stderr = stderr
	res.Artifacts = artifacts
	res.Duration = time.Since(start)

	s.onResult(res)
	s.emitState(req, model.CellStateDone)
	return true
}

// drainQueueLocked empties the pending queue in sequence order. Caller
// holds s.mu.
func (s *Session) drainQueueLocked() []model.ExecutionRequest {
	var reqs []model.ExecutionRequest
	for s.queue.Len() > 0 {
		reqs = append(reqs, heap.Pop(&s.queue).(model.ExecutionRequest))
	}
	return reqs
}

// reportFlushed emits an interrupted result for each request that never
// started evaluating. The execution counter is deliberately untouched.
func (s *Session) reportFlushed(reqs []model.ExecutionRequest) {
	for _, req := range reqs {
		s.onResult(model.ExecutionResult{
			NotebookID:     s.notebookID,
			CellID:         req.CellID,
			SequenceNumber: req.SequenceNumber,
			Status:         model.StatusInterrupted,
		})
		s.emitState(req, model.CellStateDone)
	}
}

func (s *Session) emitState(req model.ExecutionRequest, state model.CellState) {
	s.onState(model.StateChange{
		NotebookID:     s.notebookID,
		CellID:         req.CellID,
		SequenceNumber: req.SequenceNumber,
		State:          state,
	})
}

func (s *Session) bumpCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCount++
	return s.execCount
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

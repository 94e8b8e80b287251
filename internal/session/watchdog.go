package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lunalab/luna-kernel/internal/capture"
	"github.com/lunalab/luna-kernel/internal/model"
)

// watchdog is the cancellation controller for one in-flight execution.
//
// Two timers: a hard timeout that fires a cooperative interrupt (long by
// default — notebooks run legitimate long computations), and a grace
// timer armed whenever an interrupt has been requested (by timeout, user
// stop, or shutdown). If the execution still hasn't returned when the
// grace timer fires, the worker goroutine is abandoned: goroutines cannot
// be killed, so forced termination means failing the session, releasing
// the capture slot, and reporting the result on the worker's behalf.
//
// Exactly one ExecutionResult per request is guaranteed by the claim
// flag: whoever wins the claim — the returning worker or the forced
// termination path — emits the result.
type watchdog struct {
	s     *Session
	req   model.ExecutionRequest
	h     *capture.Handle
	start time.Time

	claimed atomic.Bool

	mu       sync.Mutex
	disarmed bool
	timeout  *time.Timer
	grace    *time.Timer
}

func newWatchdog(s *Session, req model.ExecutionRequest, h *capture.Handle, start time.Time) *watchdog {
	return &watchdog{s: s, req: req, h: h, start: start}
}

// arm starts the hard-timeout backstop. A non-positive ExecTimeout
// disables it; interruption then only happens on explicit stop.
func (w *watchdog) arm() {
	if w.s.cfg.ExecTimeout <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = time.AfterFunc(w.s.cfg.ExecTimeout, w.onTimeout)
}

// disarm stops both timers. Called by the worker as soon as Eval returns;
// a timer callback that already fired races only through the claim flag.
func (w *watchdog) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarmed = true
	if w.timeout != nil {
		w.timeout.Stop()
	}
	if w.grace != nil {
		w.grace.Stop()
	}
}

// claim marks the request as reported-by-me. Returns false if the other
// side got there first.
func (w *watchdog) claim() bool {
	return w.claimed.CompareAndSwap(false, true)
}

func (w *watchdog) onTimeout() {
	w.s.logger.Warn("execution deadline exceeded, interrupting",
		slog.String("cell", w.req.CellID),
		slog.Uint64("sequence", w.req.SequenceNumber),
		slog.Duration("timeout", w.s.cfg.ExecTimeout),
	)
	w.s.it.Interrupt(ErrDeadlineExceeded)
	w.armGrace()
}

// armGrace starts the grace countdown toward forced termination. Called
// after any interrupt request; arming twice is a no-op so a user stop
// followed by the timeout does not shorten the window.
func (w *watchdog) armGrace() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disarmed || w.grace != nil {
		return
	}
	d := w.s.cfg.Grace
	if d <= 0 {
		d = DefaultConfig().Grace
	}
	w.grace = time.AfterFunc(d, w.forceTerminate)
}

// forceTerminate abandons the stuck worker. The session is marked failed
// (the registry will recreate it, namespace loss accepted), queued
// requests are flushed as interrupted, the capture slot is released so
// other notebooks keep working, and the in-flight request gets its one
// interrupted result with a note that variable state is gone.
func (w *watchdog) forceTerminate() {
	if !w.claim() {
		return
	}
	s := w.s
	s.logger.Error("grace period exceeded, abandoning execution worker",
		slog.String("cell", w.req.CellID),
		slog.Uint64("sequence", w.req.SequenceNumber),
	)

	s.mu.Lock()
	s.failed = true
	s.state = model.SessionStateFailed
	flushed := s.drainQueueLocked()
	s.mu.Unlock()

	w.h.Abort()

	s.onResult(model.ExecutionResult{
		NotebookID:     s.notebookID,
		CellID:         w.req.CellID,
		SequenceNumber: w.req.SequenceNumber,
		Status:         model.StatusInterrupted,
		Stderr:         "execution did not stop within the grace period; the session was terminated and notebook variable state is lost\n",
		ExecutionCount: s.bumpCount(),
		Duration:       time.Since(w.start),
	})
	s.emitState(w.req, model.CellStateDone)
	s.reportFlushed(flushed)

	// The worker goroutine may never return; unblock anyone waiting for
	// this session to go idle.
	s.finish()
}

// Package capture implements the output capture adapter: scoped ownership
// of the process's console-output channel and the visualization
// subsystem's pending-figure list for the duration of exactly one
// execution, with guaranteed release on every exit path.
//
// Both resources are process-wide, and notebooks execute in parallel on
// separate workers — so the capture span must serialize across ALL
// sessions, not just within one. That serialization is the single lock in
// the kernel; all other state (per-session namespace, per-session queue)
// is exclusively owned by its session.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/lunalab/luna-kernel/internal/model"
	"github.com/lunalab/luna-kernel/internal/viz"
)

// span is the process-wide capture slot. Begin blocks on it while another
// session's capture is active. A channel rather than a sync.Mutex because
// forced termination releases the slot from the watchdog goroutine, not
// the one that acquired it.
var span = make(chan struct{}, 1)

// state guards handle buffers and the fallback console destinations.
var state = struct {
	mu          sync.Mutex
	fallbackOut io.Writer
	fallbackErr io.Writer
}{
	fallbackOut: os.Stdout,
	fallbackErr: os.Stderr,
}

// Handle is an active capture. Obtain one with Begin; release it with
// exactly one call to End (normal paths) or Abort (forced termination).
type Handle struct {
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	released bool
}

// Begin acquires the capture slot, arranges for console output written
// through the handle's writers to land in in-memory buffers, and clears
// the pending-figure list. Blocks while another capture is active.
func Begin() *Handle {
	span <- struct{}{}
	viz.Clear()
	return &Handle{}
}

// Stdout returns the handle's captured stdout destination. After the
// handle is released, writes fall through to the real console so late
// output from an abandoned worker is neither lost nor misattributed to a
// different notebook's capture.
func (h *Handle) Stdout() io.Writer { return handleWriter{h: h, errStream: false} }

// Stderr is the stderr counterpart of Stdout.
func (h *Handle) Stderr() io.Writer { return handleWriter{h: h, errStream: true} }

type handleWriter struct {
	h         *Handle
	errStream bool
}

func (w handleWriter) Write(p []byte) (int, error) {
	state.mu.Lock()
	defer state.mu.Unlock()
	if w.h.released {
		if w.errStream {
			return state.fallbackErr.Write(p)
		}
		return state.fallbackOut.Write(p)
	}
	if w.errStream {
		return w.h.stderr.Write(p)
	}
	return w.h.stdout.Write(p)
}

// End restores the console channel, drains pending figures into rendered
// PNG artifacts, and returns everything captured. It must be called on
// every exit path — normal completion, evaluation error, interruption.
// Calling End on a handle that was already aborted returns zero values.
func (h *Handle) End() (stdout, stderr string, artifacts []model.Artifact) {
	state.mu.Lock()
	if h.released {
		state.mu.Unlock()
		return "", "", nil
	}
	h.released = true
	stdout = h.stdout.String()
	stderr = h.stderr.String()
	state.mu.Unlock()

	var renderNotes bytes.Buffer
	for i, f := range viz.Drain() {
		png, err := viz.Render(f)
		if err != nil {
			// A bad figure degrades, it does not fail the execution.
			fmt.Fprintf(&renderNotes, "figure %d could not be rendered: %v\n", i, err)
			continue
		}
		artifacts = append(artifacts, model.Artifact{
			Index:    len(artifacts),
			MIMEType: "image/png",
			Data:     png,
		})
	}
	stderr += renderNotes.String()

	<-span
	return stdout, stderr, artifacts
}

// Abort releases the capture slot on behalf of a worker that is being
// abandoned by forced termination. Captured text and pending figures are
// discarded, and the worker's own eventual End call becomes a no-op. This
// keeps the rest of the process able to capture even though the abandoned
// goroutine may never return.
func (h *Handle) Abort() {
	state.mu.Lock()
	if h.released {
		state.mu.Unlock()
		return
	}
	h.released = true
	state.mu.Unlock()

	viz.Clear()
	<-span
}

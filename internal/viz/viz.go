// Package viz is the kernel's visualization subsystem.
//
// Cells create figures through the plot API (see Enable); figures land on
// a process-wide pending list, exactly one of which exists per process.
// The output capture adapter clears that list when a capture begins and
// drains it when the capture ends, rendering each figure to a PNG
// artifact. The pending list is shared mutable state across all sessions,
// which is one of the two resources the capture span serializes.
package viz

import "sync"

// Kind selects how a figure's series are drawn.
type Kind string

const (
	KindLine    Kind = "line"
	KindScatter Kind = "scatter"
	KindBar     Kind = "bar"
)

// Series is one plotted data set. Xs may be empty, in which case point
// indices are used. Bar figures use Ys only.
type Series struct {
	Label string
	Xs    []float64
	Ys    []float64
}

// Figure is a pending visual output awaiting rendering.
type Figure struct {
	Kind   Kind
	Title  string
	XLabel string
	YLabel string
	Series []Series
}

// pending is the process-wide pending-figure list. Its mutex guards only
// list access; the capture span is what keeps two executions from
// interleaving their figures.
var pending struct {
	mu      sync.Mutex
	figures []*Figure
}

// Enqueue appends a figure to the pending list.
func Enqueue(f *Figure) {
	pending.mu.Lock()
	defer pending.mu.Unlock()
	pending.figures = append(pending.figures, f)
}

// Clear discards all pending figures. Called when a capture begins so a
// previous execution's leftovers cannot leak into this one.
func Clear() {
	pending.mu.Lock()
	defer pending.mu.Unlock()
	pending.figures = nil
}

// Drain removes and returns all pending figures in creation order.
func Drain() []*Figure {
	pending.mu.Lock()
	defer pending.mu.Unlock()
	figs := pending.figures
	pending.figures = nil
	return figs
}

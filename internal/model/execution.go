// Package model defines the data structures exchanged between the kernel
// core and the notebook front end. These are plain structs — the request
// and result of one cell execution, plus the state-change events used to
// drive busy indicators.
package model

import "time"

// Status describes how an execution ended.
type Status string

const (
	// StatusCompleted — the cell ran to completion.
	StatusCompleted Status = "completed"
	// StatusErrored — the cell's own code failed; the error summary is
	// carried in the result, never surfaced as a submit error.
	StatusErrored Status = "errored"
	// StatusInterrupted — the execution was stopped by user action,
	// timeout, or session shutdown.
	StatusInterrupted Status = "interrupted"
)

// CellState is the lifecycle of one submitted cell as seen by the front
// end: queued → running → done.
type CellState string

const (
	CellStateQueued  CellState = "queued"
	CellStateRunning CellState = "running"
	CellStateDone    CellState = "done"
)

// SessionState is the lifecycle of an execution session.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateRunning      SessionState = "running"
	SessionStateShuttingDown SessionState = "shutting_down"
	// SessionStateFailed — the session was lost to forced termination and
	// must be recreated by the registry before it can run anything again.
	SessionStateFailed SessionState = "failed"
)

// ExecutionRequest is one code unit submitted for execution.
//
// SequenceNumber is assigned at submission time and is monotonically
// increasing per notebook; it establishes the required execution order.
// Requests are immutable and consumed exactly once by their session.
type ExecutionRequest struct {
	NotebookID     string `json:"notebookId"`
	CellID         string `json:"cellId"`
	SourceCode     string `json:"sourceCode"`
	SequenceNumber uint64 `json:"sequenceNumber"`
}

// ErrorSummary describes a failure inside submitted code.
//
// Kind is the error class as reported by the interpreter (e.g.
// "TypeError", "SyntaxError"). Trace is a human-readable rendering of the
// failure location within the submitted source, stack included when the
// interpreter provides one.
type ErrorSummary struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// Artifact is one rendered visual output (a plot) produced as a side
// effect of execution. Index is stable and establishes display order.
// Data is raw image bytes; encoding/json transports []byte as base64.
type Artifact struct {
	Index    int    `json:"index"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// ExecutionResult is the outcome of exactly one ExecutionRequest. It is
// delivered once, asynchronously, and afterward owned by the front end.
//
// ExecutionCount mirrors conventional notebook "In [n]" numbering: the
// 1-based ordinal of this execution within its session's lifetime. It is
// zero for interrupted requests whose evaluation never began.
type ExecutionResult struct {
	NotebookID     string        `json:"notebookId"`
	CellID         string        `json:"cellId"`
	SequenceNumber uint64        `json:"sequenceNumber"`
	Status         Status        `json:"status"`
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	Error          *ErrorSummary `json:"error,omitempty"`
	Artifacts      []Artifact    `json:"artifacts,omitempty"`
	ExecutionCount int           `json:"executionCount"`
	Duration       time.Duration `json:"duration"`
}

// StateChange notifies the front end that a cell moved through its
// lifecycle. Used to render busy indicators and enable the stop action.
type StateChange struct {
	NotebookID     string    `json:"notebookId"`
	CellID         string    `json:"cellId"`
	SequenceNumber uint64    `json:"sequenceNumber"`
	State          CellState `json:"state"`
}

// ExecutionRecord is a persisted ExecutionResult in the history store.
// Artifact blobs are stored separately and referenced by (ID, index).
type ExecutionRecord struct {
	ID             string        `json:"id"`
	NotebookID     string        `json:"notebookId"`
	CellID         string        `json:"cellId"`
	SequenceNumber uint64        `json:"sequenceNumber"`
	Status         Status        `json:"status"`
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ErrorKind      string        `json:"errorKind,omitempty"`
	ErrorMessage   string        `json:"errorMessage,omitempty"`
	ErrorTrace     string        `json:"errorTrace,omitempty"`
	ExecutionCount int           `json:"executionCount"`
	ArtifactCount  int           `json:"artifactCount"`
	Duration       time.Duration `json:"duration"`
	CreatedAt      time.Time     `json:"createdAt"`
}

package session

import "github.com/lunalab/luna-kernel/internal/model"

// requestQueue is a min-heap of pending requests keyed on sequence
// number. Submissions normally arrive already ordered, but the protocol
// permits out-of-order arrival — those are queued, never reordered: the
// worker takes the head only once it matches the next expected sequence.
type requestQueue []model.ExecutionRequest

func (q requestQueue) Len() int           { return len(q) }
func (q requestQueue) Less(i, j int) bool { return q[i].SequenceNumber < q[j].SequenceNumber }
func (q requestQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *requestQueue) Push(x any)        { *q = append(*q, x.(model.ExecutionRequest)) }

func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	req := old[n-1]
	*q = old[:n-1]
	return req
}

// head returns the lowest queued sequence number. Callers must check
// Len() first.
func (q requestQueue) head() uint64 { return q[0].SequenceNumber }

package session

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lunalab/luna-kernel/internal/model"
)

func TestRequestQueueOrdersBySequence(t *testing.T) {
	var q requestQueue
	for _, seq := range []uint64{5, 1, 3, 2, 4} {
		heap.Push(&q, model.ExecutionRequest{SequenceNumber: seq})
	}

	assert.Equal(t, uint64(1), q.head())
	for want := uint64(1); want <= 5; want++ {
		req := heap.Pop(&q).(model.ExecutionRequest)
		assert.Equal(t, want, req.SequenceNumber)
	}
	assert.Zero(t, q.Len())
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunalab/luna-kernel/internal/apperror"
	"github.com/lunalab/luna-kernel/internal/model"
	"github.com/lunalab/luna-kernel/internal/repository"
	"github.com/lunalab/luna-kernel/internal/repository/sqlite"
	"github.com/lunalab/luna-kernel/internal/session"
)

const testWait = 10 * time.Second

func newService(t *testing.T, db *sqlite.DB) *NotebookService {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	var history repository.ExecutionHistoryRepository
	if db != nil {
		history = db
	}
	svc := NewNotebookService(session.DefaultConfig(), history, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testWait)
		defer cancel()
		svc.CloseAll(ctx)
	})
	return svc
}

func nextEvent(t *testing.T, events <-chan Event, typ EventType) Event {
	t.Helper()
	deadline := time.After(testWait)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		notebookID string
		cellID     string
		source     string
		wantField  string
	}{
		{"missing notebook", "", "cell-1", "1", "notebookId"},
		{"blank notebook", "   ", "cell-1", "1", "notebookId"},
		{"missing cell", "nb-1", "", "1", "cellId"},
		{"missing source", "nb-1", "cell-1", "", "source"},
		{"oversized source", "nb-1", "cell-1", strings.Repeat("x", MaxSourceLength+1), "source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.notebookID, tt.cellID, tt.source)
			require.Error(t, err)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestSubmitDeliversResultToSubscriber(t *testing.T) {
	svc := newService(t, nil)

	events, cancel := svc.Subscribe("nb-1")
	defer cancel()

	seq, err := svc.Submit(context.Background(), "nb-1", "cell-1", `console.log("hi"); 40 + 2`)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	ev := nextEvent(t, events, EventResult)
	require.NotNil(t, ev.Result)
	assert.Equal(t, model.StatusCompleted, ev.Result.Status)
	assert.Equal(t, "hi\n42\n", ev.Result.Stdout)
}

func TestSubscriberSeesStateProgression(t *testing.T) {
	svc := newService(t, nil)

	events, cancel := svc.Subscribe("nb-1")
	defer cancel()

	_, err := svc.Submit(context.Background(), "nb-1", "cell-1", `1`)
	require.NoError(t, err)

	var seen []model.CellState
	deadline := time.After(testWait)
	for len(seen) < 3 {
		select {
		case ev := <-events:
			if ev.Type == EventState {
				seen = append(seen, ev.State.State)
			}
		case <-deadline:
			t.Fatalf("timed out; states so far: %v", seen)
		}
	}
	assert.Equal(t, []model.CellState{
		model.CellStateQueued,
		model.CellStateRunning,
		model.CellStateDone,
	}, seen)
}

func TestSubscriptionsAreScopedToNotebook(t *testing.T) {
	svc := newService(t, nil)

	other, cancel := svc.Subscribe("nb-other")
	defer cancel()

	_, err := svc.Submit(context.Background(), "nb-1", "cell-1", `1`)
	require.NoError(t, err)

	select {
	case ev := <-other:
		t.Fatalf("subscriber for nb-other received event for %v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInterruptWithoutSession(t *testing.T) {
	svc := newService(t, nil)

	err := svc.Interrupt("nb-unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestOpenIsIdempotent(t *testing.T) {
	svc := newService(t, nil)
	require.NoError(t, svc.Open("nb-1"))
	require.NoError(t, svc.Open("nb-1"))

	err := svc.Open("  ")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestHistoryDisabledWithoutStore(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.ListHistory(ctx, "nb-1", 0, 0)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	_, err = svc.GetArtifact(ctx, "exec-1", 0)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	_, err = svc.PurgeHistory(ctx, "nb-1")
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}

func TestResultsAreRecordedToHistory(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := newService(t, db)
	events, cancel := svc.Subscribe("nb-1")
	defer cancel()

	_, err = svc.Submit(context.Background(), "nb-1", "cell-1", `"persisted"`)
	require.NoError(t, err)
	nextEvent(t, events, EventResult)

	// Recording happens before the event is published, so the row exists.
	records, err := svc.ListHistory(context.Background(), "nb-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cell-1", records[0].CellID)
	assert.Equal(t, "persisted\n", records[0].Stdout)

	deleted, err := svc.PurgeHistory(context.Background(), "nb-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestCancelledSubscriptionStopsDelivery(t *testing.T) {
	svc := newService(t, nil)

	events, cancel := svc.Subscribe("nb-1")
	cancel()
	// Cancel twice is safe.
	cancel()

	_, open := <-events
	assert.False(t, open)
}

package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunalab/luna-kernel/internal/service"
	"github.com/lunalab/luna-kernel/internal/session"
)

func testRouter(t *testing.T) (*chi.Mux, *service.NotebookService) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewNotebookService(session.DefaultConfig(), nil, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc.CloseAll(ctx)
	})

	h := NewExecutionHandler(svc, logger)
	r := chi.NewRouter()
	r.Route("/api/notebooks/{notebookID}", func(r chi.Router) {
		r.Post("/executions", h.HandleSubmit)
		r.Post("/interrupt", h.HandleInterrupt)
		r.Post("/open", h.HandleOpen)
		r.Delete("/", h.HandleClose)
		r.Get("/events", h.HandleEvents)
		r.Get("/history", h.HandleHistory)
		r.Get("/history/{executionID}/artifacts/{index}", h.HandleArtifact)
		r.Delete("/history", h.HandlePurgeHistory)
	})
	return r, svc
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleSubmit(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/notebooks/nb-1/executions",
		map[string]string{"cellId": "cell-1", "source": "1 + 1"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp struct {
		SequenceNumber uint64 `json:"sequenceNumber"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(1), resp.SequenceNumber)
}

func TestHandleSubmitSequenceNumbersAdvance(t *testing.T) {
	router, _ := testRouter(t)

	for want := uint64(1); want <= 3; want++ {
		rec := doJSON(t, router, http.MethodPost, "/api/notebooks/nb-1/executions",
			map[string]string{"cellId": fmt.Sprintf("cell-%d", want), "source": "1"})
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp struct {
			SequenceNumber uint64 `json:"sequenceNumber"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, want, resp.SequenceNumber)
	}
}

func TestHandleSubmitValidation(t *testing.T) {
	router, _ := testRouter(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing source", map[string]string{"cellId": "cell-1"}},
		{"missing cell", map[string]string{"source": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/notebooks/nb-1/executions", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "validation_failed")
		})
	}
}

func TestHandleSubmitMalformedBody(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/notebooks/nb-1/executions",
		strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_failed")
}

func TestHandleInterruptWithoutSession(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/notebooks/nb-unknown/interrupt", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestHandleOpenAndClose(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/notebooks/nb-1/open", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/notebooks/nb-1/interrupt", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/notebooks/nb-1?wait=true", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Closing twice: the session is gone.
	rec = doJSON(t, router, http.MethodDelete, "/api/notebooks/nb-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHistoryDisabled(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/notebooks/nb-1/history", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "forbidden")

	rec = doJSON(t, router, http.MethodDelete, "/api/notebooks/nb-1/history", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleArtifactRejectsBadIndex(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet,
		"/api/notebooks/nb-1/history/exec-1/artifacts/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_failed")
}

func TestHandleEventsStreamsResult(t *testing.T) {
	router, _ := testRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/notebooks/nb-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rec := doJSON(t, router, http.MethodPost, "/api/notebooks/nb-1/executions",
		map[string]string{"cellId": "cell-1", "source": `"streamed"`})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Scan the stream until the result event arrives; state events for the
	// same cell precede it.
	scanner := bufio.NewScanner(resp.Body)
	var sawResultEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: result" {
			sawResultEvent = true
			continue
		}
		if sawResultEvent && strings.HasPrefix(line, "data: ") {
			var ev struct {
				Type   string `json:"type"`
				Result struct {
					Status string `json:"status"`
					Stdout string `json:"stdout"`
				} `json:"result"`
			}
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			assert.Equal(t, "result", ev.Type)
			assert.Equal(t, "completed", ev.Result.Status)
			assert.Equal(t, "streamed\n", ev.Result.Stdout)
			return
		}
	}
	t.Fatalf("stream ended without a result event: %v", scanner.Err())
}

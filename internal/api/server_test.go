package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/allofdaniel/placecrawl/internal/metrics"
	"github.com/allofdaniel/placecrawl/internal/progress/sinks"
)

type fakeStatus struct {
	status sinks.Status
}

func (f fakeStatus) Snapshot() sinks.Status { return f.status }

type fakeResults map[string]string

func (f fakeResults) Get(id string) (string, bool) {
	url, ok := f[id]
	return url, ok
}

func (f fakeResults) Snapshot() map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (f fakeResults) Len() int { return len(f) }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	rec := serve(t, s, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_RequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status StatusSource
		code   int
		state  string
	}{
		{name: "no tracker", status: nil, code: http.StatusOK},
		{name: "running", status: fakeStatus{sinks.Status{State: sinks.StateRunning}}, code: http.StatusOK, state: sinks.StateRunning},
		{name: "done", status: fakeStatus{sinks.Status{State: sinks.StateDone}}, code: http.StatusOK, state: sinks.StateDone},
		{
			name:   "failed run",
			status: fakeStatus{sinks.Status{State: sinks.StateError, LastError: "checkpoint after batch 2"}},
			code:   http.StatusServiceUnavailable,
			state:  sinks.StateError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewServer(tt.status, nil, nil, nil)
			rec := serve(t, s, "/readyz")

			require.Equal(t, tt.code, rec.Code)
			var body map[string]string
			decode(t, rec, &body)
			if tt.code == http.StatusOK {
				assert.Equal(t, "ready", body["status"])
				assert.Equal(t, tt.state, body["state"])
			} else {
				assert.Equal(t, tt.state, body["status"])
				assert.Equal(t, "checkpoint after batch 2", body["error"])
			}
		})
	}
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	want := sinks.Status{
		RunID:       "run-1",
		State:       sinks.StateRunning,
		CatalogSize: 20,
		Outstanding: 12,
		Batch:       1,
		Batches:     2,
		Processed:   4,
		Found:       3,
		NotFound:    1,
	}
	s := NewServer(fakeStatus{want}, nil, nil, nil)
	rec := serve(t, s, "/v1/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var got sinks.Status
	decode(t, rec, &got)
	assert.Equal(t, want, got)
}

func TestServer_StatusUnavailable(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	rec := serve(t, s, "/v1/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Results(t *testing.T) {
	t.Parallel()

	results := fakeResults{
		"1001": "https://a.example",
		"1002": "https://b.example/?x=1&y=2",
	}
	s := NewServer(nil, results, nil, nil)

	rec := serve(t, s, "/v1/results")
	require.Equal(t, http.StatusOK, rec.Code)
	var list resultsResponse
	decode(t, rec, &list)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, map[string]string(results), list.Results)

	rec = serve(t, s, "/v1/results/1002")
	require.Equal(t, http.StatusOK, rec.Code)
	var one map[string]string
	decode(t, rec, &one)
	assert.Equal(t, map[string]string{"id": "1002", "url": "https://b.example/?x=1&y=2"}, one)

	rec = serve(t, s, "/v1/results/9999")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errBody map[string]string
	decode(t, rec, &errBody)
	assert.Equal(t, "place not resolved", errBody["error"])
}

func TestServer_ResultsUnavailable(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, "/v1/results").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, "/v1/results/1").Code)
}

func TestServer_MetricsExposeRegistry(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	s := NewServer(nil, nil, m, nil)

	require.Equal(t, http.StatusOK, serve(t, s, "/healthz").Code)
	rec := serve(t, s, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/healthz"`)
}

func TestServer_MetricsWithoutRegistry(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, serve(t, s, "/metrics").Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	s := NewServer(panicStatus{}, nil, nil, zap.New(core))
	rec := serve(t, s, "/v1/status")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

type panicStatus struct{}

func (panicStatus) Snapshot() sinks.Status { panic("tracker exploded") }

func TestServer_StartAndShutdown(t *testing.T) {
	t.Parallel()

	s := NewServer(fakeStatus{sinks.Status{State: sinks.StateIdle}}, nil, nil, nil)
	addr, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/v1/status")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state":"idle"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, err = http.Get("http://" + addr + "/healthz")
	assert.Error(t, err)
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	assert.NoError(t, s.Shutdown(context.Background()))
}

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/samtaplin/llmneldacoding/internal/application/analysis"
	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
)

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runNelda", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "/runNelda", fields["path"])
	assert.EqualValues(t, http.StatusAccepted, fields["status"])
	assert.EqualValues(t, 6, fields["bytes"])
}

func TestMetrics_Requests(t *testing.T) {
	m := NewMetrics()
	ok := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	bad := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	bad.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap["requests_total"])
	assert.EqualValues(t, 1, snap["requests_success"])
	assert.EqualValues(t, 1, snap["requests_failed"])
	assert.EqualValues(t, 0, snap["requests_in_progress"])
}

func TestMetrics_Runs(t *testing.T) {
	m := NewMetrics()

	m.RunStarted()
	m.RunFinished(analysis.Result{
		Stage:     analysis.StagePersisted,
		Persisted: true,
		Document: &domain.Document{
			FollowUpAttempted:      true,
			MissingFieldsRecovered: 3,
			MissingFields:          []string{},
		},
	}, nil)

	m.RunStarted()
	m.RunFinished(analysis.Result{
		Stage:    analysis.StagePersistFailed,
		Document: &domain.Document{MissingFields: []string{"NELDA9"}},
	}, errors.New("store down"))

	m.RunStarted()
	m.RunFinished(analysis.Result{Stage: analysis.StageStarted}, errors.New("no reference"))

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap["analyses_started"])
	assert.EqualValues(t, 0, snap["analyses_running"])
	assert.EqualValues(t, 1, snap["analyses_persisted"])
	assert.EqualValues(t, 1, snap["analyses_persist_failed"])
	assert.EqualValues(t, 1, snap["analyses_aborted"])
	assert.EqualValues(t, 1, snap["analyses_incomplete"])
	assert.EqualValues(t, 1, snap["follow_ups"])
	assert.EqualValues(t, 3, snap["fields_recovered"])
}

func TestMetrics_Handler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMetrics().Handler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "analyses_started")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

type stubChecker struct{ err error }

func (c stubChecker) Check(context.Context) error { return c.err }

// blockingChecker waits for its context, like a store that stopped answering.
type blockingChecker struct{}

func (blockingChecker) Check(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHealthHandler(t *testing.T) {
	get := func(h http.HandlerFunc) (*httptest.ResponseRecorder, HealthReport) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var report HealthReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		return rec, report
	}

	rec, report := get(HealthHandler(map[string]HealthChecker{"store": stubChecker{}}, 0))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, "healthy", report.Checks["store"].Status)

	rec, report = get(HealthHandler(map[string]HealthChecker{
		"store":     stubChecker{err: errors.New("bucket missing")},
		"reference": stubChecker{},
	}, 0))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, "bucket missing", report.Checks["store"].Message)
	assert.Equal(t, "healthy", report.Checks["reference"].Status)
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	h := HealthHandler(map[string]HealthChecker{"store": blockingChecker{}}, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Checks["store"].Message)
}

func TestReadiness_Drain(t *testing.T) {
	rd := &Readiness{}

	rec := httptest.NewRecorder()
	rd.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ready"`)

	rd.Drain()
	rec = httptest.NewRecorder()
	rd.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"draining"`)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(path, addr string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/runNelda", "10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, do("/runNelda", "10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do("/runNelda", "10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, do("/runNelda", "10.0.0.2:1000"))
	assert.Equal(t, http.StatusOK, do("/health", "10.0.0.1:1003"))
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(11 * time.Minute)
	rl.Allow("b")
	rl.Sweep()

	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}

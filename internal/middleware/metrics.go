package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/samtaplin/llmneldacoding/internal/application/analysis"
)

// Metrics counts HTTP requests and background analyses. It satisfies
// analysis.Recorder.
type Metrics struct {
	requestsTotal      atomic.Uint64
	requestsInProgress atomic.Int64
	requestsSuccess    atomic.Uint64
	requestsFailed     atomic.Uint64

	analysesStarted       atomic.Uint64
	analysesRunning       atomic.Int64
	analysesPersisted     atomic.Uint64
	analysesPersistFailed atomic.Uint64
	analysesAborted       atomic.Uint64
	followUps             atomic.Uint64
	fieldsRecovered       atomic.Uint64
	analysesIncomplete    atomic.Uint64

	startTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RunStarted() {
	m.analysesStarted.Add(1)
	m.analysesRunning.Add(1)
}

func (m *Metrics) RunFinished(res analysis.Result, err error) {
	m.analysesRunning.Add(-1)
	switch {
	case err == nil:
		m.analysesPersisted.Add(1)
	case res.Stage == analysis.StagePersistFailed:
		m.analysesPersistFailed.Add(1)
	default:
		m.analysesAborted.Add(1)
	}
	if doc := res.Document; doc != nil {
		if doc.FollowUpAttempted {
			m.followUps.Add(1)
		}
		m.fieldsRecovered.Add(uint64(doc.MissingFieldsRecovered))
		if len(doc.MissingFields) > 0 {
			m.analysesIncomplete.Add(1)
		}
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"requests_total":          m.requestsTotal.Load(),
		"requests_in_progress":    m.requestsInProgress.Load(),
		"requests_success":        m.requestsSuccess.Load(),
		"requests_failed":         m.requestsFailed.Load(),
		"analyses_started":        m.analysesStarted.Load(),
		"analyses_running":        m.analysesRunning.Load(),
		"analyses_persisted":      m.analysesPersisted.Load(),
		"analyses_persist_failed": m.analysesPersistFailed.Load(),
		"analyses_aborted":        m.analysesAborted.Load(),
		"analyses_incomplete":     m.analysesIncomplete.Load(),
		"follow_ups":              m.followUps.Load(),
		"fields_recovered":        m.fieldsRecovered.Load(),
		"uptime_seconds":          time.Since(m.startTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestsTotal.Add(1)
		m.requestsInProgress.Add(1)
		defer m.requestsInProgress.Add(-1)

		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.requestsSuccess.Add(1)
		} else {
			m.requestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}

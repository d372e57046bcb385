package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a single dependency check.
const DefaultCheckTimeout = 5 * time.Second

// HealthChecker is implemented by the document stores.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// HealthReport is the /health body.
type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthHandler runs the checkers concurrently, each under its own timeout,
// and answers 503 when any of them fails.
func HealthHandler(checkers map[string]HealthChecker, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return func(w http.ResponseWriter, r *http.Request) {
		report := HealthReport{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]CheckResult, len(checkers)),
		}

		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		for name, checker := range checkers {
			g.Go(func() error {
				res := runCheck(r.Context(), checker, timeout)
				mu.Lock()
				report.Checks[name] = res
				if res.Status != "healthy" {
					report.Status = "unhealthy"
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		code := http.StatusOK
		if report.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, report)
	}
}

func runCheck(ctx context.Context, checker HealthChecker, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := checker.Check(ctx)
	res := CheckResult{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "unhealthy"
		res.Message = err.Error()
	}
	return res
}

// Readiness reports whether the process still accepts triggers. It turns
// 503 once Drain is called so load balancers stop routing during shutdown.
type Readiness struct {
	draining atomic.Bool
}

type readinessReport struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Drain marks the process as shutting down.
func (rd *Readiness) Drain() { rd.draining.Store(true) }

func (rd *Readiness) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rd.draining.Load() {
		writeStatus(w, http.StatusServiceUnavailable, readinessReport{Status: "draining", Timestamp: time.Now().UTC()})
		return
	}
	writeStatus(w, http.StatusOK, readinessReport{Status: "ready", Timestamp: time.Now().UTC()})
}

// LivenessHandler answers as long as the process can serve HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

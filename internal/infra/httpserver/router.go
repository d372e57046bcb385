package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
	"github.com/samtaplin/llmneldacoding/internal/domain/trigger"
	"github.com/samtaplin/llmneldacoding/internal/middleware"
)

// maxBodyBytes caps a trigger body; real payloads are a few hundred bytes.
const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("Invalid JSON body")

// Submitter hands a validated trigger to the background runner.
type Submitter interface {
	Submit(req trigger.Request)
}

// Options carries the optional collaborators of the router.
type Options struct {
	Repo     domain.Repository
	Checkers map[string]middleware.HealthChecker
	// CheckTimeout bounds each health check; zero means DefaultCheckTimeout.
	CheckTimeout time.Duration
	Readiness    *middleware.Readiness
	Metrics      *middleware.Metrics
	RateLimiter  *middleware.RateLimiter
	CORSOrigins  []string
	Logger       *zap.Logger
}

type Router struct {
	runner Submitter
	repo   domain.Repository
	log    *zap.Logger
}

func NewRouter(runner Submitter, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	if opts.Readiness == nil {
		opts.Readiness = &middleware.Readiness{}
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := &Router{runner: runner, repo: opts.Repo, log: opts.Logger}
	mux := chi.NewRouter()

	mux.Use(r.recoverer)
	mux.Use(middleware.Logging(opts.Logger))
	mux.Use(opts.Metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if opts.RateLimiter != nil {
		mux.Use(opts.RateLimiter.Middleware)
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checkers, opts.CheckTimeout))
	mux.Method(http.MethodGet, "/readyz", opts.Readiness)
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/metrics", opts.Metrics.Handler)

	mux.Post("/runNelda", r.wrap(r.handleRunNelda))
	if opts.Repo != nil {
		mux.Get("/analyses/{electionId}", r.wrap(r.handleListAnalyses))
	}

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, trigger.ErrMissingParameters):
				writeError(w, http.StatusBadRequest, trigger.ErrMissingParameters.Error())
			case errors.Is(err, trigger.ErrInvalidParameters), errors.Is(err, errBadJSON):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
				writeError(w, http.StatusInternalServerError, err.Error())
			}
		}
	}
}

// recoverer turns a handler panic into a JSON 500.
func (r *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				r.log.Error("handler panicked", zap.Any("panic", p), zap.Stack("stack"))
				writeError(w, http.StatusInternalServerError, fmt.Sprint(p))
			}
		}()
		next.ServeHTTP(w, req)
	})
}

// POST /runNelda
// Body: {"electionId","countryName","types","year","mmdd","pre"}
// The analysis runs in the background; the response only acknowledges it.
func (r *Router) handleRunNelda(w http.ResponseWriter, req *http.Request) error {
	payload, err := decodePayload(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	trig, err := payload.Validate()
	if err != nil {
		return err
	}

	r.runner.Submit(trig)

	return writeJSON(w, http.StatusAccepted, map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("NELDA analysis started for election %s (%s-election)", trig.ElectionID, trig.Side()),
		"status":     "processing",
		"electionId": trig.ElectionID,
	})
}

func decodePayload(body io.Reader) (trigger.Payload, error) {
	var p trigger.Payload
	if err := json.NewDecoder(body).Decode(&p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return p, fmt.Errorf("%w: %s", trigger.ErrInvalidParameters, typeErr.Field)
		}
		return p, errBadJSON
	}
	return p, nil
}

// GET /analyses/{electionId}?limit=20
func (r *Router) handleListAnalyses(w http.ResponseWriter, req *http.Request) error {
	electionID := chi.URLParam(req, "electionId")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.repo.ListByElection(req.Context(), electionID, domain.ClampLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, map[string]string{"error": msg})
}

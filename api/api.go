// Package api serves the job status surface over HTTP.
//
//	POST   /v1/jobs          create a job and submit its task
//	GET    /v1/jobs/{jobID}  public status of a job
//	DELETE /v1/jobs/{jobID}  finalize a job
//	GET    /healthz          state store reachability
//	GET    /metrics          Prometheus metrics, when configured
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/jobrunner/job"
)

// Service is the subset of the engine the API depends on.
type Service interface {
	CreateJob(ctx context.Context, kind string) (*job.Record, error)
	Submit(ctx context.Context, jobID, task string, args ...any) error
	GetPublicStatus(ctx context.Context, jobID string) (*job.PublicStatus, bool)
	FinalizeJob(ctx context.Context, jobID string) bool
	Ping(ctx context.Context) error
}

// API wires the HTTP handlers to a Service.
type API struct {
	svc      Service
	logger   *slog.Logger
	metrics  http.Handler
	validate *validator.Validate
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}

// New creates an API over svc.
func New(svc Service, opts ...Option) *API {
	a := &API{
		svc:      svc,
		logger:   slog.Default(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", a.healthz)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", a.createJob)
		r.Get("/{jobID}", a.getJob)
		r.Delete("/{jobID}", a.finalizeJob)
	})
	return r
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

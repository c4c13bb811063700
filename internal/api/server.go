// Package api exposes the generation pipelines over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/store"
	diagnosecrop "agri-pipeline/internal/workers/crop-health/diagnose-crop"
	generateannualplan "agri-pipeline/internal/workers/planning/generate-annual-plan"
	advisorytips "agri-pipeline/internal/workers/weather/advisory-tips"
	"agri-pipeline/pkg/registry"
)

const defaultMaxUploadBytes = 10 << 20

type PlanService interface {
	Execute(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error)
}

type DiagnosisService interface {
	Execute(ctx context.Context, req *models.CropDiagnosisRequest) (*diagnosecrop.Output, error)
}

type AdvisoryService interface {
	Execute(ctx context.Context, req *models.WeatherAdvisoryRequest) (*advisorytips.Output, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	Plans      PlanService
	Diagnoses  DiagnosisService
	Advisories AdvisoryService

	// Store is optional; results are persisted only when a request names a userId.
	Store    store.Store
	Registry *registry.PipelineRegistry
	Checks   map[string]ReadinessCheck

	MaxUploadBytes      int64
	MaxImageUploadBytes int64 // diagnosis bodies, which carry the photo

	// Production hides error details from clients.
	Production bool
	Metrics    http.Handler
	Logger     logger.Logger
}

type Server struct {
	opts   Options
	logger logger.Logger
}

func NewServer(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.MaxImageUploadBytes <= 0 {
		opts.MaxImageUploadBytes = models.MaxImageUploadBytes
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	if opts.Registry == nil {
		opts.Registry = registry.Build(time.Now())
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Server{opts: opts, logger: log.WithFields(map[string]interface{}{"component": "api"})}
}

// Routes returns the HTTP handler for every endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", s.opts.Metrics)

	mux.HandleFunc("GET /api/v1/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleTask)

	if s.opts.Plans != nil {
		mux.HandleFunc("POST "+registry.EndpointAnnualPlan, s.handleAnnualPlan)
	}
	if s.opts.Diagnoses != nil {
		mux.HandleFunc("POST "+registry.EndpointCropDiagnosis, s.handleCropDiagnosis)
	}
	if s.opts.Advisories != nil {
		mux.HandleFunc("POST "+registry.EndpointWeatherAdvisory, s.handleWeatherAdvisory)
	}

	return s.recoverer(s.accessLog(mux))
}

// HTTPServer wraps Routes in an http.Server listening on addr.
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

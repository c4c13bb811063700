// Package pipeline runs one generation request through validation, context
// retrieval, prompt composition, model invocation and normalization.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/common/metrics"
	"agri-pipeline/internal/common/observability"
	"agri-pipeline/internal/failover"
	"agri-pipeline/internal/generation"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/normalize"
	"agri-pipeline/internal/retrieval"
	"agri-pipeline/internal/schema"
)

// Stage names used in logs, spans and metric labels.
const (
	StageValidation    = "validation"
	StageRetrieval     = "retrieval"
	StageComposition   = "composition"
	StageInvocation    = "invocation"
	StageNormalization = "normalization"
)

const DefaultRequestTimeout = 60 * time.Second

type Config struct {
	RequestTimeout time.Duration
	Retry          failover.RetryPolicy
	Retrieval      retrieval.Options
}

type Dependencies struct {
	Retrievers    *retrieval.Chain
	Generators    *generation.Chain
	Normalizer    *normalize.Normalizer
	Observability *observability.Observability
	Logger        logger.Logger
}

// Runner holds the stateless collaborators shared by every request.
type Runner struct {
	config     Config
	retrievers *retrieval.Chain
	generators *generation.Chain
	normalizer *normalize.Normalizer
	obs        *observability.Observability
	logger     logger.Logger
	newID      func() string
}

func NewRunner(cfg Config, deps Dependencies) *Runner {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	norm := deps.Normalizer
	if norm == nil {
		norm = normalize.New(normalize.Options{MinSupplied: normalize.DefaultMinSupplied}, log)
	}
	return &Runner{
		config:     cfg,
		retrievers: deps.Retrievers,
		generators: deps.Generators,
		normalizer: norm,
		obs:        deps.Observability,
		logger:     log,
		newID:      uuid.NewString,
	}
}

// Retrievers exposes the configured context providers.
func (r *Runner) Retrievers() []string { return r.retrievers.Names() }

// Generators exposes the configured models in attempt order.
func (r *Runner) Generators() []string { return r.generators.Names() }

// Task describes one request type. Query may be nil for types that never
// retrieve context; Media may be nil for text-only types.
type Task[Req models.GenerationRequest, Res any] struct {
	TaskType string
	Schema   *schema.Node
	Query    func(req Req) string
	Compose  func(req Req, bundle *models.ContextBundle) string
	Media    func(req Req) *models.Media
	Finalize func(req Req, res *Res, generatedAt time.Time)
}

// Provenance records which providers served a request.
type Provenance struct {
	RetrievedBy string             `json:"retrievedBy,omitempty"`
	GeneratedBy string             `json:"generatedBy"`
	Attempts    []failover.Attempt `json:"attempts"`
	Degraded    bool               `json:"degraded"`
}

// Outcome is the complete result of a successful run.
type Outcome[Res any] struct {
	RequestID   string                `json:"requestId"`
	Result      *Res                  `json:"result"`
	Context     *models.ContextBundle `json:"context,omitempty"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Provenance  Provenance            `json:"provenance"`
}

type mediaReleaser interface {
	ReleaseMedia()
}

// Execute runs req through task. On failure the returned error is always a
// *errors.PipelineError and no partial outcome is returned.
func Execute[Req models.GenerationRequest, Res any](ctx context.Context, r *Runner, task Task[Req, Res], req Req) (*Outcome[Res], error) {
	run := &runState{
		runner:    r,
		taskType:  task.TaskType,
		requestID: r.newID(),
		started:   time.Now(),
	}
	run.logger = r.logger.WithFields(map[string]interface{}{
		"requestId": run.requestID,
		"taskType":  task.TaskType,
	})
	run.logger.Debug("state transition", map[string]interface{}{"state": "received"})

	outcome, err := execute(ctx, run, task, req)
	if err != nil {
		pe := apperrors.Normalize(apperrors.StageValidation, err)
		run.finish(ctx, metrics.OutcomeFailure)
		run.logger.Warn("generation failed", map[string]interface{}{
			"stage":       string(pe.Stage),
			"code":        string(pe.Code),
			"retryable":   pe.Retryable,
			"provider":    pe.Provider,
			"duration_ms": time.Since(run.started).Milliseconds(),
		})
		return nil, pe
	}

	run.finish(ctx, metrics.OutcomeSuccess)
	run.logger.Info("generation completed", map[string]interface{}{
		"servedBy":    outcome.Provenance.GeneratedBy,
		"degraded":    outcome.Provenance.Degraded,
		"duration_ms": time.Since(run.started).Milliseconds(),
	})
	return outcome, nil
}

func execute[Req models.GenerationRequest, Res any](ctx context.Context, run *runState, task Task[Req, Res], req Req) (*Outcome[Res], error) {
	r := run.runner

	// Validation happens before any deadline or network call.
	if err := run.stage(ctx, StageValidation, apperrors.StageValidation, func(context.Context) error {
		return req.Validate()
	}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()

	var provenance Provenance
	var bundle *models.ContextBundle

	if task.Query != nil {
		if query := strings.TrimSpace(task.Query(req)); query != "" {
			err := run.stage(ctx, StageRetrieval, apperrors.StageRetrieval, func(ctx context.Context) error {
				return failover.Retry(ctx, r.config.Retry, func(ctx context.Context) error {
					b, report, err := r.retrievers.Retrieve(ctx, query, r.config.Retrieval)
					provenance.Attempts = append(provenance.Attempts, report.Attempts...)
					if err != nil {
						return err
					}
					bundle = b
					provenance.RetrievedBy = report.ServedBy
					return nil
				})
			})
			if err != nil {
				return nil, err
			}
		}
	}

	var prompt string
	if err := run.stage(ctx, StageComposition, apperrors.StageComposition, func(context.Context) error {
		prompt = task.Compose(req, bundle)
		if strings.TrimSpace(prompt) == "" {
			return apperrors.NewPromptCompositionError("composed prompt is empty")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var media *models.Media
	if task.Media != nil {
		media = task.Media(req)
	}

	var raw string
	err := run.stage(ctx, StageInvocation, apperrors.StageInvocation, func(ctx context.Context) error {
		return failover.Retry(ctx, r.config.Retry, func(ctx context.Context) error {
			out, report, err := r.generators.Generate(ctx, prompt, task.Schema, media)
			provenance.Attempts = append(provenance.Attempts, report.Attempts...)
			if err != nil {
				return err
			}
			raw = out
			provenance.GeneratedBy = report.ServedBy
			return nil
		})
	})
	if rel, ok := any(req).(mediaReleaser); ok {
		rel.ReleaseMedia()
	}
	if err != nil {
		return nil, err
	}

	var result *Res
	var generatedAt time.Time
	if err := run.stage(ctx, StageNormalization, apperrors.StageValidation, func(context.Context) error {
		doc, err := r.normalizer.Normalize(raw, task.Schema)
		if err != nil {
			return err
		}
		if doc.Degraded {
			provenance.Degraded = true
			metrics.PipelineSchemaDegraded.WithLabelValues(run.taskType).Inc()
		}
		result, err = normalize.Decode[Res](doc)
		if err != nil {
			return err
		}
		generatedAt = doc.GeneratedAt
		if task.Finalize != nil {
			task.Finalize(req, result, generatedAt)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	run.logger.Debug("state transition", map[string]interface{}{"state": "completed"})
	return &Outcome[Res]{
		RequestID:   run.requestID,
		Result:      result,
		Context:     bundle,
		GeneratedAt: generatedAt,
		Provenance:  provenance,
	}, nil
}

// runState carries per-request bookkeeping.
type runState struct {
	runner    *Runner
	taskType  string
	requestID string
	started   time.Time
	logger    logger.Logger
}

func (run *runState) stage(ctx context.Context, name string, errStage apperrors.Stage, fn func(ctx context.Context) error) error {
	run.logger.Debug("state transition", map[string]interface{}{"state": name})

	ctx, span := run.runner.obs.StartSpan(ctx, "pipeline."+name,
		attribute.String("task_type", run.taskType),
		attribute.String("request_id", run.requestID),
	)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	var pe *apperrors.PipelineError
	if err != nil {
		pe = apperrors.Normalize(errStage, err)
		span.SetAttributes(attribute.String("error_code", string(pe.Code)))
		observability.EndSpan(span, pe)
		metrics.PipelineFailures.WithLabelValues(run.taskType, name, string(pe.Code)).Inc()
	} else {
		observability.EndSpan(span, nil)
	}

	metrics.PipelineStageDuration.WithLabelValues(run.taskType, name).Observe(elapsed.Seconds())
	run.runner.obs.RecordStageDuration(ctx, run.taskType, name, elapsed)

	if pe != nil {
		return pe
	}
	return nil
}

func (run *runState) finish(ctx context.Context, outcome string) {
	metrics.PipelineRequests.WithLabelValues(run.taskType, outcome).Inc()
	run.runner.obs.RecordRun(ctx, run.taskType, outcome)
}

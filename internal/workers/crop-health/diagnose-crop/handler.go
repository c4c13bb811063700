package diagnosecrop

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/common/metrics"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/pipeline"
	"agri-pipeline/internal/prompt"
	"agri-pipeline/internal/schema"
)

const TaskType = "diagnose-crop"

type Handler struct {
	config   *Config
	runner   *pipeline.Runner
	composer *prompt.Composer
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

type HandlerOptions struct {
	Config   *Config
	Runner   *pipeline.Runner
	Composer *prompt.Composer
	Logger   logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("%s: pipeline runner is required", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	composer := opts.Composer
	if composer == nil {
		composer = prompt.NewComposer(prompt.Options{})
	}

	log = log.WithFields(map[string]interface{}{"worker": TaskType})
	return &Handler{
		config:   cfg,
		runner:   opts.Runner,
		composer: composer,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
	}, nil
}

func (h *Handler) GetTaskType() string { return TaskType }

func (h *Handler) Config() *Config { return h.config }

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing crop diagnosis job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		h.fail(ctx, client, job, apperrors.NewParamValidationError("job variables are not a valid crop diagnosis request"))
		return
	}
	req, err := input.Request()
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, req)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"jobKey": job.GetKey(), "error": err.Error()})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.GetKey(), "error": err.Error()})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	pe := apperrors.Normalize(apperrors.StageValidation, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(pe.Code)).Inc()
	h.errors.HandleJobError(ctx, client, job, pe.Stage, pe)
}

// Execute diagnoses the photo in req. The image bytes are released once the
// model call returns, whatever its outcome.
func (h *Handler) Execute(ctx context.Context, req *models.CropDiagnosisRequest) (*Output, error) {
	outcome, err := pipeline.Execute(ctx, h.runner, h.Task(), req)
	if err != nil {
		return nil, err
	}
	return &Output{
		RequestID:   outcome.RequestID,
		Diagnosis:   outcome.Result,
		Context:     outcome.Context,
		GeneratedAt: outcome.GeneratedAt,
		Provenance:  outcome.Provenance,
	}, nil
}

func (h *Handler) Task() pipeline.Task[*models.CropDiagnosisRequest, models.CropDiagnosis] {
	return pipeline.Task[*models.CropDiagnosisRequest, models.CropDiagnosis]{
		TaskType: TaskType,
		Schema:   schema.CropDiagnosis,
		Compose:  h.composer.CropDiagnosis,
		Media: func(req *models.CropDiagnosisRequest) *models.Media {
			return req.Image
		},
		Finalize: finalize,
	}
}

func finalize(req *models.CropDiagnosisRequest, d *models.CropDiagnosis, generatedAt time.Time) {
	if d.CropType == "" {
		d.CropType = req.CropType
	}
	d.GeneratedAt = generatedAt

	if math.IsNaN(d.DiseaseConfidence) {
		d.DiseaseConfidence = 0
	}
	d.DiseaseConfidence = math.Max(0, math.Min(100, d.DiseaseConfidence))

	if d.IsHealthy && d.Severity == "" {
		d.Severity = models.SeverityNone
	}

	sort.SliceStable(d.Treatment, func(i, j int) bool {
		return stepOrder(d.Treatment[i].Step) < stepOrder(d.Treatment[j].Step)
	})
	for i := range d.Treatment {
		d.Treatment[i].Step = i + 1
	}
}

// stepOrder puts unnumbered steps after numbered ones.
func stepOrder(step int) int {
	if step <= 0 {
		return math.MaxInt
	}
	return step
}

package generateannualplan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
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

const TaskType = "generate-annual-plan"

type Handler struct {
	config   *Config
	runner   *pipeline.Runner
	composer *prompt.Composer
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
	now      func() time.Time
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
		now:      time.Now,
	}, nil
}

func (h *Handler) GetTaskType() string { return TaskType }

func (h *Handler) Config() *Config { return h.config }

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing annual plan job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		h.fail(ctx, client, job, apperrors.NewParamValidationError("job variables are not a valid annual plan request"))
		return
	}

	output, err := h.Execute(ctx, &input)
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

// Execute runs the annual plan pipeline for input.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	outcome, err := pipeline.Execute(ctx, h.runner, h.Task(), input)
	if err != nil {
		return nil, err
	}
	return &Output{
		RequestID:   outcome.RequestID,
		Plan:        outcome.Result,
		Context:     outcome.Context,
		GeneratedAt: outcome.GeneratedAt,
		Provenance:  outcome.Provenance,
	}, nil
}

// Task describes the annual plan request type to the pipeline.
func (h *Handler) Task() pipeline.Task[*models.AnnualPlanRequest, models.AnnualPlan] {
	return pipeline.Task[*models.AnnualPlanRequest, models.AnnualPlan]{
		TaskType: TaskType,
		Schema:   schema.AnnualPlan,
		Query:    buildQuery,
		Compose:  h.compose,
		Finalize: h.finalize,
	}
}

func (h *Handler) compose(req *models.AnnualPlanRequest, bundle *models.ContextBundle) string {
	if req.Year != 0 {
		return h.composer.AnnualPlan(req, bundle)
	}
	withYear := *req
	withYear.Year = h.now().Year()
	return h.composer.AnnualPlan(&withYear, bundle)
}

func buildQuery(req *models.AnnualPlanRequest) string {
	parts := []string{
		"Seasonal farming calendar for",
		strings.Join(req.PrimaryCrops, ", "),
		"in", req.Location,
	}
	if req.SoilType != "" {
		parts = append(parts, "on", req.SoilType, "soil")
	}
	parts = append(parts, ": sowing windows, irrigation and fertilizer schedule, pest risks")
	if req.WaterSource != "" {
		parts = append(parts, "with", req.WaterSource, "irrigation")
	}
	return strings.Join(parts, " ")
}

func (h *Handler) finalize(req *models.AnnualPlanRequest, plan *models.AnnualPlan, generatedAt time.Time) {
	plan.Year = req.Year
	if plan.Year == 0 {
		plan.Year = generatedAt.Year()
	}
	plan.GeneratedAt = generatedAt
	plan.Months = normalizeMonths(plan.Months)
}

// normalizeMonths returns exactly twelve entries in calendar order. Entries
// naming a month take that slot (first one wins); entries without a usable
// month name fill the remaining slots in order.
func normalizeMonths(in []models.MonthPlan) []models.MonthPlan {
	names := models.MonthNames()
	slots := make([]*models.MonthPlan, len(names))
	var unnamed []models.MonthPlan

	for i := range in {
		m := in[i]
		idx := monthIndex(m.Month)
		if idx < 0 {
			unnamed = append(unnamed, m)
			continue
		}
		if slots[idx] == nil {
			slots[idx] = &m
		}
	}

	out := make([]models.MonthPlan, len(names))
	for i, name := range names {
		switch {
		case slots[i] != nil:
			out[i] = *slots[i]
		case len(unnamed) > 0:
			out[i] = unnamed[0]
			unnamed = unnamed[1:]
		default:
			out[i] = models.MonthPlan{}
		}
		out[i].Month = name
		if out[i].Activities == nil {
			out[i].Activities = []models.Activity{}
		}
		for j := range out[i].Activities {
			out[i].Activities[j].Status = models.StatusPending
			if out[i].Activities[j].Priority == "" {
				out[i].Activities[j].Priority = models.PriorityMedium
			}
		}
	}
	return out
}

func monthIndex(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 3 {
		return -1
	}
	for i, month := range models.MonthNames() {
		m := strings.ToLower(month)
		if name == m || name == m[:3] {
			return i
		}
	}
	return -1
}

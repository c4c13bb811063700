package advisorytips

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
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

const TaskType = "weather-advisory-tips"

// Notifier delivers high priority tips to a farmer's phone.
type Notifier interface {
	NotifyAdvisory(ctx context.Context, phone, location string, tips []models.AdvisoryTip) error
}

type Handler struct {
	config     *Config
	runner     *pipeline.Runner
	composer   *prompt.Composer
	notifier   Notifier
	useContext bool
	errors     *apperrors.ErrorHandler
	logger     logger.Logger
}

type HandlerOptions struct {
	Config   *Config
	Runner   *pipeline.Runner
	Composer *prompt.Composer
	// Notifier is optional; without it alertPhone is ignored.
	Notifier Notifier
	// UseContext enables web context retrieval for advisories.
	UseContext bool
	Logger     logger.Logger
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
		config:     cfg,
		runner:     opts.Runner,
		composer:   composer,
		notifier:   opts.Notifier,
		useContext: opts.UseContext,
		errors:     apperrors.NewErrorHandler(log),
		logger:     log,
	}, nil
}

func (h *Handler) GetTaskType() string { return TaskType }

func (h *Handler) Config() *Config { return h.config }

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing weather advisory job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	var input Input
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		h.fail(ctx, client, job, apperrors.NewParamValidationError("job variables are not a valid weather advisory request"))
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

// Execute generates the advisory and, when the request carries an alert
// phone, texts the high priority tips. A failed alert never fails the
// request.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	outcome, err := pipeline.Execute(ctx, h.runner, h.Task(), input)
	if err != nil {
		return nil, err
	}

	out := &Output{
		RequestID:   outcome.RequestID,
		Advisory:    outcome.Result,
		Context:     outcome.Context,
		GeneratedAt: outcome.GeneratedAt,
		Provenance:  outcome.Provenance,
	}
	out.AlertSent = h.alert(ctx, input, outcome.Result)
	return out, nil
}

func (h *Handler) alert(ctx context.Context, input *Input, advisory *models.WeatherAdvisory) bool {
	if h.notifier == nil || strings.TrimSpace(input.AlertPhone) == "" {
		return false
	}
	tips := advisory.HighPriorityTips()
	if len(tips) == 0 {
		return false
	}
	if err := h.notifier.NotifyAdvisory(ctx, input.AlertPhone, input.Location, tips); err != nil {
		h.logger.Warn("advisory alert not delivered", map[string]interface{}{
			"location": input.Location,
			"tips":     len(tips),
			"error":    err.Error(),
		})
		return false
	}
	return true
}

func (h *Handler) Task() pipeline.Task[*models.WeatherAdvisoryRequest, models.WeatherAdvisory] {
	task := pipeline.Task[*models.WeatherAdvisoryRequest, models.WeatherAdvisory]{
		TaskType: TaskType,
		Schema:   schema.WeatherAdvisory,
		Compose:  h.composer.WeatherAdvisory,
		Finalize: finalize,
	}
	if h.useContext {
		task.Query = buildQuery
	}
	return task
}

func buildQuery(req *models.WeatherAdvisoryRequest) string {
	var conditions []string
	seen := map[string]bool{}
	if req.Current != nil {
		conditions = append(conditions, req.Current.Condition)
		seen[strings.ToLower(req.Current.Condition)] = true
	}
	for _, day := range req.Forecast {
		key := strings.ToLower(day.Condition)
		if day.Condition == "" || seen[key] {
			continue
		}
		seen[key] = true
		conditions = append(conditions, day.Condition)
	}

	crops := "crops"
	if len(req.Crops) > 0 {
		crops = strings.Join(req.Crops, ", ")
	}
	return fmt.Sprintf("Protecting %s in %s during %s weather: irrigation, spraying and harvest timing",
		crops, req.Location, strings.Join(conditions, ", "))
}

// finalize orders tips by priority, keeping the model's order within a level.
func finalize(_ *models.WeatherAdvisoryRequest, a *models.WeatherAdvisory, generatedAt time.Time) {
	a.GeneratedAt = generatedAt
	sort.SliceStable(a.Tips, func(i, j int) bool {
		return models.PriorityRank(a.Tips[i].Priority) > models.PriorityRank(a.Tips[j].Priority)
	})
}

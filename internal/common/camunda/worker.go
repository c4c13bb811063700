// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// JobHandler completes or fails the job itself.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// WorkerOptions configures one job worker.
type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for opts.TaskType. The zbc client stays owned by the caller.
func NewWorker(client zbc.Client, opts WorkerOptions, handler JobHandler, log logger.Logger) *CamundaWorker {
	builder := client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(Instrument(opts.TaskType, handler.Handle)).
		MaxJobsActive(opts.MaxJobsActive)
	if opts.Timeout > 0 {
		builder = builder.Timeout(opts.Timeout)
	}

	w := &CamundaWorker{
		worker:   builder.Open(),
		logger:   log,
		taskType: opts.TaskType,
	}
	log.Info("worker started", map[string]interface{}{
		"taskType":      opts.TaskType,
		"maxJobsActive": opts.MaxJobsActive,
	})
	return w
}

// Instrument tracks active jobs and handling time for taskType.
func Instrument(taskType string, handle worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		defer func() {
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		}()
		handle(client, job)
	}
}

func (w *CamundaWorker) Stop() {
	w.logger.Info("stopping worker", map[string]interface{}{"taskType": w.taskType})
	w.worker.Close()
	w.worker.AwaitClose()
}

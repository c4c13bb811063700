// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return "BPMNError[" + e.Code + "]: " + e.Message
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ConvertToBPMNError converts a PipelineError for Camunda. Only user-safe
// text goes into errorMessage; the raw details stay in errorDetails.
func ConvertToBPMNError(pe *PipelineError) *BPMNError {
	retries := GetRetryCount(pe.Code)
	if !pe.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"errorStage": string(pe.Stage),
		"timestamp":  pe.Timestamp.Format(time.RFC3339),
	}
	if pe.Provider != "" {
		vars["errorProvider"] = pe.Provider
	}

	return &BPMNError{
		Code:           string(pe.Code),
		Message:        pe.UserMessage(),
		Details:        pe.Details,
		Retryable:      pe.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler fails or throws Zeebe jobs based on the PipelineError taxonomy.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError fails the job with retries for retryable codes while the job
// still has retries left, otherwise throws a BPMN error with the code.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, stage Stage, err error) {
	pe := Normalize(stage, err)
	bpmnErr := ConvertToBPMNError(pe)

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(pe.Code),
		"stage":            string(pe.Stage),
		"details":          pe.Details,
		"retryable":        pe.Retryable,
		"retries":          bpmnErr.Retries,
		"errorCategory":    GetErrorCategory(pe.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})

	if bpmnErr.Retries > 0 && job.Retries > 0 {
		h.failJobWithRetries(ctx, client, job, bpmnErr)
		return
	}
	h.throwBPMNError(ctx, client, job, bpmnErr)
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	retries := bpmnErr.Retries
	if int(job.Retries)-1 < retries {
		retries = int(job.Retries) - 1
	}

	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(retries)).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			if _, err := withVars.Send(ctx); err != nil {
				h.logger.Error("failed to send fail job command", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
			}
			return
		}
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send fail job command", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
	}
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, bpmnErr *BPMNError) {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(bpmnErr.Code).
		ErrorMessage(bpmnErr.Message)

	if varsJSON, err := json.Marshal(bpmnErr.ToErrorVariables()); err == nil {
		if withVars, err := cmd.VariablesFromString(string(varsJSON)); err == nil {
			if _, err := withVars.Send(ctx); err != nil {
				h.logger.Error("failed to send throw error command", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
			}
			return
		}
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send throw error command", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
	}
}

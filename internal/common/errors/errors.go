// Package errors provides the pipeline error taxonomy and its mapping onto
// HTTP responses and Zeebe job failures.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Stages and Codes
// ==========================

// Stage is the pipeline phase an error originated from.
type Stage string

const (
	StageValidation  Stage = "validation"
	StageRetrieval   Stage = "retrieval"
	StageComposition Stage = "composition"
	StageInvocation  Stage = "invocation"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeParamValidation             ErrorCode = "PARAM_VALIDATION"
	ErrCodeContextRetrievalFailure     ErrorCode = "CONTEXT_RETRIEVAL_FAILURE"
	ErrCodeRetrievalConfigError        ErrorCode = "RETRIEVAL_CONFIG_ERROR"
	ErrCodePromptCompositionFailed     ErrorCode = "PROMPT_COMPOSITION_FAILED"
	ErrCodeInvocationConfigError       ErrorCode = "INVOCATION_CONFIG_ERROR"
	ErrCodeInvocationQuotaExceeded     ErrorCode = "INVOCATION_QUOTA_EXCEEDED"
	ErrCodeInvocationBackendError      ErrorCode = "INVOCATION_BACKEND_ERROR"
	ErrCodeResponseParseFailure        ErrorCode = "RESPONSE_PARSE_FAILURE"
	ErrCodeResponseContentInsufficient ErrorCode = "RESPONSE_CONTENT_INSUFFICIENT"
	ErrCodeInternal                    ErrorCode = "INTERNAL_ERROR"
)

// CodeSchemaShapeDegraded labels repaired model output in logs and metrics.
// It is never carried by a PipelineError.
const CodeSchemaShapeDegraded = "SCHEMA_SHAPE_DEGRADED"

// PipelineError is the single value returned when a generation request fails.
type PipelineError struct {
	Stage     Stage     `json:"stage"`
	Code      ErrorCode `json:"kind"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	cause error
}

func (e *PipelineError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("PipelineError[%s/%s]: %s: %s", e.Stage, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("PipelineError[%s/%s]: %s", e.Stage, e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// WithProvider returns a copy tagged with the provider that produced it.
func (e *PipelineError) WithProvider(name string) *PipelineError {
	cp := *e
	cp.Provider = name
	return &cp
}

// HTTPStatus maps the error code onto the response status of the boundary endpoint.
func (e *PipelineError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeParamValidation:
		return http.StatusBadRequest
	case ErrCodeInvocationQuotaExceeded:
		return http.StatusTooManyRequests
	case ErrCodeContextRetrievalFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the stable, user-safe text for the error code.
func (e *PipelineError) UserMessage() string {
	switch e.Code {
	case ErrCodeParamValidation:
		return e.Message
	case ErrCodeContextRetrievalFailure:
		return "Failed to fetch agricultural context. Please try again."
	case ErrCodeRetrievalConfigError:
		return "Context search service is not configured"
	case ErrCodeInvocationConfigError:
		return "AI generation service is not configured"
	case ErrCodeInvocationQuotaExceeded:
		return "AI service quota exceeded. Please try again later."
	case ErrCodeInvocationBackendError:
		return "AI generation service is temporarily unavailable. Please try again."
	case ErrCodeResponseParseFailure, ErrCodePromptCompositionFailed:
		return "Failed to generate content. Please try again."
	case ErrCodeResponseContentInsufficient:
		return "Generated content was incomplete. Please try again."
	default:
		return "Internal server error"
	}
}

// ==========================
// 2. Constructors
// ==========================

func newError(stage Stage, code ErrorCode, message, details string, retryable bool, cause error) *PipelineError {
	return &PipelineError{
		Stage:     stage,
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewParamValidationError reports missing or malformed request fields.
func NewParamValidationError(problems ...string) *PipelineError {
	msg := "Invalid request parameters"
	if len(problems) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(problems, "; "))
	}
	return newError(StageValidation, ErrCodeParamValidation, msg, "", false, nil)
}

// NewContextRetrievalError creates a retryable search provider failure.
func NewContextRetrievalError(provider string, err error) *PipelineError {
	e := newError(StageRetrieval, ErrCodeContextRetrievalFailure, "Context retrieval failed", detailsOf(err), true, err)
	e.Provider = provider
	return e
}

// NewRetrievalConfigError reports a search provider without credentials.
func NewRetrievalConfigError(provider, details string) *PipelineError {
	e := newError(StageRetrieval, ErrCodeRetrievalConfigError, "Context search service is not configured", details, false, nil)
	e.Provider = provider
	return e
}

// NewPromptCompositionError reports a prompt that could not be rendered.
func NewPromptCompositionError(details string) *PipelineError {
	return newError(StageComposition, ErrCodePromptCompositionFailed, "Prompt composition failed", details, false, nil)
}

// NewInvocationConfigError reports a fatal generator configuration problem.
func NewInvocationConfigError(details string, err error) *PipelineError {
	if details == "" {
		details = detailsOf(err)
	}
	return newError(StageInvocation, ErrCodeInvocationConfigError, "AI generation service is not configured", details, false, err)
}

// NewInvocationQuotaError creates a retryable quota exhaustion error.
func NewInvocationQuotaError(err error) *PipelineError {
	return newError(StageInvocation, ErrCodeInvocationQuotaExceeded, "Generation quota exceeded", detailsOf(err), true, err)
}

// NewInvocationBackendError wraps transport and backend failures of the generator.
func NewInvocationBackendError(err error, retryable bool) *PipelineError {
	return newError(StageInvocation, ErrCodeInvocationBackendError, "Generation backend error", detailsOf(err), retryable, err)
}

// NewResponseParseError reports model output that is not a JSON object.
func NewResponseParseError(err error) *PipelineError {
	return newError(StageValidation, ErrCodeResponseParseFailure, "Generation failed", detailsOf(err), false, err)
}

// NewContentInsufficientError rejects output made almost entirely of defaults.
func NewContentInsufficientError(supplied, minimum int) *PipelineError {
	return newError(StageValidation, ErrCodeResponseContentInsufficient, "Generated content was incomplete",
		fmt.Sprintf("model supplied %d field(s), minimum is %d", supplied, minimum), false, nil)
}

// NewInternalError wraps an unexpected failure at the given stage.
func NewInternalError(stage Stage, err error) *PipelineError {
	return newError(stage, ErrCodeInternal, "Unexpected error", detailsOf(err), false, err)
}

// ==========================
// 3. Utility Functions
// ==========================

// AsPipelineError extracts a *PipelineError from an error chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err is a retryable PipelineError.
func IsRetryable(err error) bool {
	pe, ok := AsPipelineError(err)
	return ok && pe.Retryable
}

// Normalize converts any error into a PipelineError attributed to stage.
// Context cancellation and deadline errors are mapped onto the stage's
// backend failure kind.
func Normalize(stage Stage, err error) *PipelineError {
	if err == nil {
		return nil
	}
	if pe, ok := AsPipelineError(err); ok {
		return pe
	}

	timedOut := stderrors.Is(err, context.DeadlineExceeded)
	cancelled := stderrors.Is(err, context.Canceled)

	switch stage {
	case StageRetrieval:
		if timedOut || cancelled {
			return NewContextRetrievalError("", err)
		}
	case StageInvocation:
		if timedOut {
			return NewInvocationBackendError(err, true)
		}
		if cancelled {
			return NewInvocationBackendError(err, false)
		}
	}
	return NewInternalError(stage, err)
}

// GetRetryCount returns the Zeebe retry budget for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeContextRetrievalFailure,
		ErrCodeInvocationBackendError:
		return 3
	case ErrCodeInvocationQuotaExceeded:
		return 2
	default:
		return 0
	}
}

// GetErrorCategory groups codes for dashboards and log queries.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "PARAM"):
		return "VALIDATION"
	case strings.Contains(codeStr, "RETRIEVAL"):
		return "SEARCH"
	case strings.HasPrefix(codeStr, "INVOCATION"):
		return "AI"
	case strings.HasPrefix(codeStr, "RESPONSE"), strings.HasPrefix(codeStr, "PROMPT"):
		return "GENERATION"
	default:
		return "INTERNAL"
	}
}

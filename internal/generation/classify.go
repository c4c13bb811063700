package generation

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	apperrors "agri-pipeline/internal/common/errors"
)

// classifyError maps SDK and transport errors onto invocation error kinds.
func classifyError(err error) *apperrors.PipelineError {
	if pe, ok := apperrors.AsPipelineError(err); ok {
		return pe
	}
	if stderrors.Is(err, context.Canceled) {
		return apperrors.NewInvocationBackendError(err, false)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewInvocationBackendError(err, true)
	}

	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return apperrors.NewInvocationConfigError("model rejected the configured credentials", err)
		case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key"):
			return apperrors.NewInvocationConfigError("model rejected the configured api key", err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return apperrors.NewInvocationQuotaError(err)
		}
	}
	return apperrors.NewInvocationBackendError(err, true)
}

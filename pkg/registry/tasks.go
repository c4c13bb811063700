package registry

import (
	"time"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/schema"
	diagnosecrop "agri-pipeline/internal/workers/crop-health/diagnose-crop"
	generateannualplan "agri-pipeline/internal/workers/planning/generate-annual-plan"
	advisorytips "agri-pipeline/internal/workers/weather/advisory-tips"
)

const (
	DefaultVersion = "1.0.0"
	StatusVerified = "verified"
)

// Endpoint paths of the HTTP API, one per request kind.
const (
	EndpointAnnualPlan      = "/api/v1/plans/annual"
	EndpointCropDiagnosis   = "/api/v1/diagnoses/crop"
	EndpointWeatherAdvisory = "/api/v1/advisories/weather"
)

var commonErrorCodes = []apperrors.ErrorCode{
	apperrors.ErrCodeParamValidation,
	apperrors.ErrCodePromptCompositionFailed,
	apperrors.ErrCodeInvocationConfigError,
	apperrors.ErrCodeInvocationQuotaExceeded,
	apperrors.ErrCodeInvocationBackendError,
	apperrors.ErrCodeResponseParseFailure,
	apperrors.ErrCodeResponseContentInsufficient,
}

var retrievalErrorCodes = []apperrors.ErrorCode{
	apperrors.ErrCodeContextRetrievalFailure,
	apperrors.ErrCodeRetrievalConfigError,
}

type definition struct {
	taskType    string
	kind        models.RequestKind
	displayName string
	description string
	category    string
	endpoint    string
	timeout     time.Duration
	retries     int
	retrieval   bool
	tags        []string
}

func definitions() []definition {
	plan := generateannualplan.DefaultConfig()
	diag := diagnosecrop.DefaultConfig()
	advice := advisorytips.DefaultConfig()

	return []definition{
		{
			taskType:    generateannualplan.TaskType,
			kind:        models.KindAnnualPlan,
			displayName: "Generate Annual Plan",
			description: "Twelve month bilingual farm plan grounded on web context",
			category:    "planning",
			endpoint:    EndpointAnnualPlan,
			timeout:     plan.Timeout,
			retries:     plan.MaxRetries,
			retrieval:   true,
			tags:        []string{"generation", "retrieval", "bilingual"},
		},
		{
			taskType:    diagnosecrop.TaskType,
			kind:        models.KindCropDiagnosis,
			displayName: "Diagnose Crop",
			description: "Disease diagnosis and treatment plan from a crop photo",
			category:    "crop-health",
			endpoint:    EndpointCropDiagnosis,
			timeout:     diag.Timeout,
			retries:     diag.MaxRetries,
			tags:        []string{"generation", "vision", "bilingual"},
		},
		{
			taskType:    advisorytips.TaskType,
			kind:        models.KindWeatherAdvisory,
			displayName: "Weather Advisory Tips",
			description: "Prioritized farming tips for the forecast, with optional SMS alert",
			category:    "weather",
			endpoint:    EndpointWeatherAdvisory,
			timeout:     advice.Timeout,
			retries:     advice.MaxRetries,
			retrieval:   true,
			tags:        []string{"generation", "bilingual", "sms"},
		},
	}
}

func (d definition) task() Task {
	codes := make([]string, 0, len(commonErrorCodes)+len(retrievalErrorCodes))
	for _, c := range commonErrorCodes {
		codes = append(codes, string(c))
	}
	if d.retrieval {
		for _, c := range retrievalErrorCodes {
			codes = append(codes, string(c))
		}
	}

	task := Task{
		ID:                   d.taskType,
		DisplayName:          d.displayName,
		Description:          d.description,
		Category:             d.category,
		Version:              DefaultVersion,
		TaskType:             d.taskType,
		RequestKind:          string(d.kind),
		Endpoint:             d.endpoint,
		ImplementationStatus: StatusVerified,
		ErrorCodes:           codes,
		Timeout:              d.timeout.String(),
		Retries:              d.retries,
		Tags:                 append([]string(nil), d.tags...),
	}
	if in, ok := schema.RequestForKind(d.kind); ok {
		task.InputSchema = schema.ToJSONSchema(in)
	}
	if out, ok := schema.ForKind(d.kind); ok {
		task.OutputSchema = schema.ToJSONSchema(out)
	}
	return task
}

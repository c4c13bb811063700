package generateannualplan

import (
	"time"

	"agri-pipeline/internal/models"
	"agri-pipeline/internal/pipeline"
)

// Input is the job variable document; it is the request itself.
type Input = models.AnnualPlanRequest

type Output struct {
	RequestID   string                `json:"requestId"`
	Plan        *models.AnnualPlan    `json:"plan"`
	Context     *models.ContextBundle `json:"context,omitempty"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Provenance  pipeline.Provenance   `json:"provenance"`
}

package advisorytips

import (
	"time"

	"agri-pipeline/internal/models"
	"agri-pipeline/internal/pipeline"
)

type Input = models.WeatherAdvisoryRequest

type Output struct {
	RequestID   string                  `json:"requestId"`
	Advisory    *models.WeatherAdvisory `json:"advisory"`
	Context     *models.ContextBundle   `json:"context,omitempty"`
	GeneratedAt time.Time               `json:"generatedAt"`
	Provenance  pipeline.Provenance     `json:"provenance"`
	AlertSent   bool                    `json:"alertSent"`
}

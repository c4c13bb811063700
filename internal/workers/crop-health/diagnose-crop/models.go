package diagnosecrop

import (
	"time"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/pipeline"
)

// Input is the job variable shape. Process variables cannot carry raw bytes,
// so the photo travels base64 encoded.
type Input struct {
	models.CropDiagnosisRequest
	ImageBase64   string `json:"imageBase64"`
	ImageMimeType string `json:"imageMimeType,omitempty"`
}

// Request decodes the image and returns the typed diagnosis request.
func (in *Input) Request() (*models.CropDiagnosisRequest, error) {
	req := in.CropDiagnosisRequest
	if in.ImageBase64 != "" {
		media, err := models.DecodeImageBase64(in.ImageBase64, in.ImageMimeType)
		if err != nil {
			return nil, apperrors.NewParamValidationError(err.Error())
		}
		req.Image = media
	}
	return &req, nil
}

type Output struct {
	RequestID   string                `json:"requestId"`
	Diagnosis   *models.CropDiagnosis `json:"diagnosis"`
	Context     *models.ContextBundle `json:"context,omitempty"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Provenance  pipeline.Provenance   `json:"provenance"`
}

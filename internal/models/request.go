// internal/models/request.go
package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	apperrors "agri-pipeline/internal/common/errors"
)

// RequestKind identifies the generation request variant.
type RequestKind string

const (
	KindAnnualPlan      RequestKind = "annual-plan"
	KindCropDiagnosis   RequestKind = "crop-diagnosis"
	KindWeatherAdvisory RequestKind = "weather-advisory"
)

// MaxImageBytes is the largest accepted diagnosis photo.
const MaxImageBytes = 10 << 20

// MaxImageUploadBytes bounds a diagnosis request body. It leaves room for a
// MaxImageBytes photo sent as base64 (4/3 larger) or as a multipart part.
const MaxImageUploadBytes = 16 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// GenerationRequest is implemented by every request variant. Validate
// returns a PARAM_VALIDATION PipelineError listing every problem found.
type GenerationRequest interface {
	Kind() RequestKind
	Validate() error
}

// FlexString accepts a JSON string or number ("5 acres" or 5).
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Media is an inline binary attachment. It is owned by the request and not
// retained past generation.
type Media struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// NewMedia sniffs the MIME type when declared is empty or generic.
func NewMedia(data []byte, declared string) *Media {
	mime := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if mime == "image/jpg" {
		mime = "image/jpeg"
	}
	return &Media{Data: data, MIMEType: mime}
}

// DecodeImageBase64 accepts raw base64 or a data URL ("data:image/png;base64,...").
func DecodeImageBase64(encoded, declared string) (*Media, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.Index(encoded, ",")
		if comma < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		header := encoded[len("data:"):comma]
		if declared == "" {
			declared = strings.TrimSuffix(header, ";base64")
		}
		encoded = encoded[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return NewMedia(data, declared), nil
}

// validate checks the attachment against the image allow-list and size cap.
func (m *Media) validate() []string {
	if m == nil || len(m.Data) == 0 {
		return []string{"image is required"}
	}
	var problems []string
	if !allowedImageTypes[m.MIMEType] {
		problems = append(problems, fmt.Sprintf("image type %q is not supported", m.MIMEType))
	}
	if len(m.Data) > MaxImageBytes {
		problems = append(problems, fmt.Sprintf("image exceeds %d bytes", MaxImageBytes))
	}
	return problems
}

type AnnualPlanRequest struct {
	Location        string     `json:"location"`
	FarmSize        FlexString `json:"farmSize"`
	SoilType        string     `json:"soilType"`
	PrimaryCrops    []string   `json:"primaryCrops"`
	WaterSource     string     `json:"waterSource,omitempty"`
	Budget          FlexString `json:"budget,omitempty"`
	Goals           string     `json:"goals,omitempty"`
	AdditionalNotes string     `json:"additionalNotes,omitempty"`
	Year            int        `json:"year,omitempty"`
}

func (r *AnnualPlanRequest) Kind() RequestKind { return KindAnnualPlan }

func (r *AnnualPlanRequest) Validate() error {
	var problems []string
	problems = appendIfBlank(problems, "location", r.Location)
	problems = appendIfBlank(problems, "farmSize", r.FarmSize.String())
	problems = appendIfBlank(problems, "soilType", r.SoilType)
	problems = append(problems, validateList("primaryCrops", r.PrimaryCrops, true)...)
	if r.Year != 0 && (r.Year < 2000 || r.Year > 2100) {
		problems = append(problems, "year must be between 2000 and 2100")
	}
	return toValidationError(problems)
}

type CropDiagnosisRequest struct {
	Image           *Media `json:"-"`
	CropType        string `json:"cropType"`
	Symptoms        string `json:"symptoms,omitempty"`
	Location        string `json:"location,omitempty"`
	AdditionalNotes string `json:"additionalNotes,omitempty"`
}

func (r *CropDiagnosisRequest) Kind() RequestKind { return KindCropDiagnosis }

func (r *CropDiagnosisRequest) Validate() error {
	problems := r.Image.validate()
	problems = appendIfBlank(problems, "cropType", r.CropType)
	return toValidationError(problems)
}

// ReleaseMedia drops the image bytes once generation no longer needs them.
func (r *CropDiagnosisRequest) ReleaseMedia() {
	if r.Image != nil {
		r.Image.Data = nil
	}
}

type WeatherReading struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Condition   string   `json:"condition"`
	WindSpeed   *float64 `json:"windSpeed,omitempty"`
}

type ForecastDay struct {
	Date          string   `json:"date"`
	Condition     string   `json:"condition"`
	MinTemp       *float64 `json:"minTemp,omitempty"`
	MaxTemp       *float64 `json:"maxTemp,omitempty"`
	ChanceOfRain  *float64 `json:"chanceOfRain,omitempty"`
	Precipitation *float64 `json:"precipitation,omitempty"`
}

type WeatherAdvisoryRequest struct {
	Location        string          `json:"location"`
	Current         *WeatherReading `json:"current"`
	Forecast        []ForecastDay   `json:"forecast"`
	Crops           []string        `json:"crops,omitempty"`
	AdditionalNotes string          `json:"additionalNotes,omitempty"`
	AlertPhone      string          `json:"alertPhone,omitempty"`
}

func (r *WeatherAdvisoryRequest) Kind() RequestKind { return KindWeatherAdvisory }

func (r *WeatherAdvisoryRequest) Validate() error {
	var problems []string
	problems = appendIfBlank(problems, "location", r.Location)

	if r.Current == nil {
		problems = append(problems, "current weather is required")
	} else {
		if r.Current.Temperature == nil {
			problems = append(problems, "current.temperature is required")
		}
		if r.Current.Humidity == nil {
			problems = append(problems, "current.humidity is required")
		}
		problems = appendIfBlank(problems, "current.condition", r.Current.Condition)
	}

	if len(r.Forecast) == 0 {
		problems = append(problems, "forecast must contain at least one day")
	}
	for i, day := range r.Forecast {
		problems = appendIfBlank(problems, fmt.Sprintf("forecast[%d].date", i), day.Date)
		problems = appendIfBlank(problems, fmt.Sprintf("forecast[%d].condition", i), day.Condition)
	}

	problems = append(problems, validateList("crops", r.Crops, false)...)
	return toValidationError(problems)
}

func appendIfBlank(problems []string, field, value string) []string {
	if strings.TrimSpace(value) == "" {
		return append(problems, field+" is required")
	}
	return problems
}

func validateList(field string, values []string, required bool) []string {
	if len(values) == 0 {
		if required {
			return []string{field + " must contain at least one entry"}
		}
		return nil
	}
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			return []string{field + "[" + strconv.Itoa(i) + "] must not be empty"}
		}
	}
	return nil
}

func toValidationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewParamValidationError(problems...)
}

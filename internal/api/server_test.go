package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/pipeline"
	"agri-pipeline/internal/store"
	diagnosecrop "agri-pipeline/internal/workers/crop-health/diagnose-crop"
	generateannualplan "agri-pipeline/internal/workers/planning/generate-annual-plan"
	advisorytips "agri-pipeline/internal/workers/weather/advisory-tips"
)

// ==========================
// Test Doubles
// ==========================

type planFunc func(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error)

func (f planFunc) Execute(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error) {
	return f(ctx, req)
}

type diagnosisFunc func(ctx context.Context, req *models.CropDiagnosisRequest) (*diagnosecrop.Output, error)

func (f diagnosisFunc) Execute(ctx context.Context, req *models.CropDiagnosisRequest) (*diagnosecrop.Output, error) {
	return f(ctx, req)
}

type advisoryFunc func(ctx context.Context, req *models.WeatherAdvisoryRequest) (*advisorytips.Output, error)

func (f advisoryFunc) Execute(ctx context.Context, req *models.WeatherAdvisoryRequest) (*advisorytips.Output, error) {
	return f(ctx, req)
}

type memoryStore struct {
	records []*store.Record
	err     error
}

func (m *memoryStore) Save(ctx context.Context, rec *store.Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryStore) Backend() string { return "memory" }

var generatedAt = time.Date(2027, 4, 1, 9, 0, 0, 0, time.UTC)

func planOutput(req *models.AnnualPlanRequest) *generateannualplan.Output {
	return &generateannualplan.Output{
		RequestID: "req-1",
		Plan: &models.AnnualPlan{
			PlanTitle:   "Plan for " + req.Location,
			PlanTitleEN: "Plan for " + req.Location,
			Months:      []models.MonthPlan{{Month: "January"}},
			Year:        2027,
			GeneratedAt: generatedAt,
		},
		Context:     models.NewContextBundle("summary", nil, "tavily"),
		GeneratedAt: generatedAt,
		Provenance:  pipeline.Provenance{GeneratedBy: "gemini-2.0-flash", RetrievedBy: "tavily"},
	}
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	opts.Logger = logger.NewTestLogger(t)
	return NewServer(opts).Routes()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

const planJSON = `{"location":"Lahore","farmSize":5,"soilType":"Loamy","primaryCrops":["Wheat"],"userId":"farmer-7"}`

// ==========================
// Generation Endpoints
// ==========================

func TestAnnualPlan_JSON(t *testing.T) {
	st := &memoryStore{}
	var got *models.AnnualPlanRequest
	h := newTestServer(t, Options{
		Plans: planFunc(func(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error) {
			got = req
			return planOutput(req), nil
		}),
		Store: st,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/plans/annual", strings.NewReader(planJSON)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, got)
	assert.Equal(t, models.FlexString("5"), got.FarmSize)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Plan for Lahore", data["planTitle"])
	assert.Equal(t, "req-1", data["requestId"])
	assert.Equal(t, true, data["persisted"])
	assert.Contains(t, data, "annualPlan")
	assert.Equal(t, "tavily", data["context"].(map[string]interface{})["provider"])

	require.Len(t, st.records, 1)
	assert.Equal(t, "farmer-7", st.records[0].UserID)
	assert.Equal(t, models.KindAnnualPlan, st.records[0].Kind)
	assert.Contains(t, string(st.records[0].Payload), "Plan for Lahore")
}

func TestAnnualPlan_Form(t *testing.T) {
	var got *models.AnnualPlanRequest
	h := newTestServer(t, Options{
		Plans: planFunc(func(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error) {
			got = req
			return planOutput(req), nil
		}),
	})

	form := "location=Okara&farmSize=3+acres&soilType=Clay&primaryCrops=Potato,+Maize&year=2028"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/annual", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Potato", "Maize"}, got.PrimaryCrops)
	assert.Equal(t, 2028, got.Year)
	assert.NotContains(t, decodeBody(t, rec)["data"], "persisted")
}

func TestAnnualPlan_PersistFailureStillSucceeds(t *testing.T) {
	h := newTestServer(t, Options{
		Plans: planFunc(func(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error) {
			return planOutput(req), nil
		}),
		Store: &memoryStore{err: errors.New("redis down")},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/plans/annual", strings.NewReader(planJSON)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["data"].(map[string]interface{})["persisted"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		production  bool
		wantStatus  int
		wantError   string
		wantDetails bool
	}{
		{"validation", apperrors.NewParamValidationError("location is required"), false, http.StatusBadRequest, "Invalid request parameters: location is required", false},
		{"quota", apperrors.NewInvocationQuotaError(errors.New("429 RESOURCE_EXHAUSTED")), false, http.StatusTooManyRequests, "AI service quota exceeded. Please try again later.", true},
		{"retrieval", apperrors.NewContextRetrievalError("tavily", errors.New("502 from upstream")), false, http.StatusBadGateway, "Failed to fetch agricultural context. Please try again.", true},
		{"config", apperrors.NewInvocationConfigError("generation api key is not set", nil), false, http.StatusInternalServerError, "AI generation service is not configured", true},
		{"parse in production", apperrors.NewResponseParseError(errors.New("unexpected token")), true, http.StatusInternalServerError, "Failed to generate content. Please try again.", false},
		{"plain error", errors.New("boom"), false, http.StatusInternalServerError, "Internal server error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, Options{
				Production: tt.production,
				Plans: planFunc(func(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error) {
					return nil, tt.err
				}),
			})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/plans/annual", strings.NewReader(planJSON)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.wantError, body["error"])
			_, hasDetails := body["details"]
			assert.Equal(t, tt.wantDetails, hasDetails)
			assert.NotContains(t, body, "success")
		})
	}
}

func TestMalformedJSON(t *testing.T) {
	called := false
	h := newTestServer(t, Options{
		Plans: planFunc(func(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error) {
			called = true
			return nil, nil
		}),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/plans/annual", strings.NewReader(`{"location":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestBodyTooLarge(t *testing.T) {
	h := newTestServer(t, Options{
		MaxUploadBytes: 64,
		Plans: planFunc(func(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error) {
			return planOutput(req), nil
		}),
	})

	big := `{"location":"` + strings.Repeat("x", 200) + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/plans/annual", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func multipartImageRequest(t *testing.T, fields map[string]string, image []byte, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="leaf.png"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/diagnoses/crop", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCropDiagnosis_Multipart(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	var got *models.CropDiagnosisRequest
	h := newTestServer(t, Options{
		Diagnoses: diagnosisFunc(func(ctx context.Context, req *models.CropDiagnosisRequest) (*diagnosecrop.Output, error) {
			got = req
			return &diagnosecrop.Output{
				RequestID:   "req-2",
				Diagnosis:   &models.CropDiagnosis{CropType: req.CropType, Severity: models.SeverityMild},
				GeneratedAt: generatedAt,
			}, nil
		}),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartImageRequest(t, map[string]string{"cropType": "Tomato", "symptoms": "yellow leaves"}, png, "application/octet-stream"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, got.Image)
	assert.Equal(t, "image/png", got.Image.MIMEType)
	assert.Equal(t, "yellow leaves", got.Symptoms)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "Tomato", data["cropType"])
	assert.Equal(t, "Mild", data["severity"])
}

func pngOfSize(n int) []byte {
	data := make([]byte, n)
	copy(data, "\x89PNG\r\n\x1a\n")
	return data
}

func TestCropDiagnosis_ImageSizeBoundaries(t *testing.T) {
	var gotBytes int
	h := newTestServer(t, Options{
		Diagnoses: diagnosisFunc(func(ctx context.Context, req *models.CropDiagnosisRequest) (*diagnosecrop.Output, error) {
			if err := req.Validate(); err != nil {
				return nil, err
			}
			gotBytes = len(req.Image.Data)
			return &diagnosecrop.Output{
				RequestID:   "req-size",
				Diagnosis:   &models.CropDiagnosis{CropType: req.CropType},
				GeneratedAt: generatedAt,
			}, nil
		}),
	})

	t.Run("8 MiB image as base64 JSON", func(t *testing.T) {
		gotBytes = 0
		body, err := json.Marshal(map[string]string{
			"cropType":      "Wheat",
			"imageBase64":   base64.StdEncoding.EncodeToString(pngOfSize(8 << 20)),
			"imageMimeType": "image/png",
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/diagnoses/crop", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 8<<20, gotBytes)
	})

	t.Run("multipart image just under the cap", func(t *testing.T) {
		gotBytes = 0
		size := models.MaxImageBytes - 100
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartImageRequest(t, map[string]string{"cropType": "Wheat"}, pngOfSize(size), "image/png"))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, size, gotBytes)
	})

	t.Run("multipart image over the cap", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartImageRequest(t, map[string]string{"cropType": "Wheat"}, pngOfSize(models.MaxImageBytes+1), "image/png"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "image exceeds")
	})

	t.Run("body over the upload limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartImageRequest(t, map[string]string{"cropType": "Wheat"}, pngOfSize(models.MaxImageUploadBytes+1), "image/png"))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestCropDiagnosis_MissingImage(t *testing.T) {
	h := newTestServer(t, Options{
		Diagnoses: diagnosisFunc(func(ctx context.Context, req *models.CropDiagnosisRequest) (*diagnosecrop.Output, error) {
			return nil, req.Validate()
		}),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartImageRequest(t, map[string]string{"cropType": "Tomato"}, nil, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "image is required")
}

func TestCropDiagnosis_InvalidBase64(t *testing.T) {
	h := newTestServer(t, Options{
		Diagnoses: diagnosisFunc(func(ctx context.Context, req *models.CropDiagnosisRequest) (*diagnosecrop.Output, error) {
			t.Fatal("service must not be called")
			return nil, nil
		}),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/diagnoses/crop",
		strings.NewReader(`{"cropType":"Rice","imageBase64":"***"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeatherAdvisory_FormWithJSONFields(t *testing.T) {
	var got *models.WeatherAdvisoryRequest
	h := newTestServer(t, Options{
		Advisories: advisoryFunc(func(ctx context.Context, req *models.WeatherAdvisoryRequest) (*advisorytips.Output, error) {
			got = req
			return &advisorytips.Output{
				RequestID: "req-3",
				Advisory:  &models.WeatherAdvisory{OverallRisk: models.RiskModerate, Tips: []models.AdvisoryTip{}},
				AlertSent: true,
			}, nil
		}),
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("location", "Hyderabad"))
	require.NoError(t, mw.WriteField("crops", "Cotton"))
	require.NoError(t, mw.WriteField("crops", "Sugarcane"))
	require.NoError(t, mw.WriteField("current", `{"temperature":41,"humidity":30,"condition":"Sunny"}`))
	require.NoError(t, mw.WriteField("forecast", `[{"date":"2027-06-01","condition":"Heatwave"}]`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/advisories/weather", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Cotton", "Sugarcane"}, got.Crops)
	require.NotNil(t, got.Current)
	assert.Equal(t, 41.0, *got.Current.Temperature)
	require.Len(t, got.Forecast, 1)
	assert.Equal(t, "Heatwave", got.Forecast[0].Condition)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, true, data["alertSent"])
	assert.Equal(t, "Moderate", data["overallRisk"])
}

func TestWeatherAdvisory_BadJSONField(t *testing.T) {
	h := newTestServer(t, Options{
		Advisories: advisoryFunc(func(ctx context.Context, req *models.WeatherAdvisoryRequest) (*advisorytips.Output, error) {
			return nil, nil
		}),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/advisories/weather", strings.NewReader("location=Hyderabad&current=not-json"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "current must be JSON encoded")
}

// ==========================
// Operational Endpoints
// ==========================

func TestTasks(t *testing.T) {
	h := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Len(t, data["tasks"], 3)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/diagnose-crop", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/v1/diagnoses/crop", decodeBody(t, rec)["data"].(map[string]interface{})["endpoint"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisabledEndpointIsNotRouted(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/plans/annual", strings.NewReader(planJSON)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	healthy := true
	h := newTestServer(t, Options{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Checks: map[string]ReadinessCheck{
			"redis": func(ctx context.Context) error {
				if healthy {
					return nil
				}
				return errors.New("connection refused")
			},
		},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", decodeBody(t, rec)["checks"].(map[string]interface{})["redis"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestPanicRecovery(t *testing.T) {
	h := newTestServer(t, Options{
		Plans: planFunc(func(ctx context.Context, req *models.AnnualPlanRequest) (*generateannualplan.Output, error) {
			panic("nil map")
		}),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/plans/annual", strings.NewReader(planJSON)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody(t, rec)["error"])
}

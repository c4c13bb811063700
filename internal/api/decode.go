package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/models"
	diagnosecrop "agri-pipeline/internal/workers/crop-health/diagnose-crop"
)

const multipartMemory = 8 << 20

func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "multipart/form-data" || mediaType == "application/x-www-form-urlencoded"
}

func parseForm(r *http.Request) error {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	return bodyError(err, "request form could not be parsed")
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bodyError(err, "request body is not valid JSON: "+err.Error())
	}
	return nil
}

// bodyError keeps size violations intact so they map to 413.
func bodyError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return apperrors.NewParamValidationError(msg)
}

// formList reads a repeated field, splitting a single comma separated value.
func formList(r *http.Request, name string) []string {
	values := r.PostForm[name]
	if len(values) == 1 && strings.Contains(values[0], ",") {
		values = strings.Split(values[0], ",")
	}
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func formJSON(r *http.Request, name string, v interface{}) error {
	raw := strings.TrimSpace(r.PostForm.Get(name))
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return apperrors.NewParamValidationError(fmt.Sprintf("%s must be JSON encoded", name))
	}
	return nil
}

type annualPlanBody struct {
	models.AnnualPlanRequest
	UserID string `json:"userId"`
}

func decodeAnnualPlan(r *http.Request) (*models.AnnualPlanRequest, string, error) {
	var body annualPlanBody
	if !isForm(r) {
		if err := decodeJSON(r, &body); err != nil {
			return nil, "", err
		}
		return &body.AnnualPlanRequest, body.UserID, nil
	}

	if err := parseForm(r); err != nil {
		return nil, "", err
	}
	req := &models.AnnualPlanRequest{
		Location:        r.PostForm.Get("location"),
		FarmSize:        models.FlexString(r.PostForm.Get("farmSize")),
		SoilType:        r.PostForm.Get("soilType"),
		PrimaryCrops:    formList(r, "primaryCrops"),
		WaterSource:     r.PostForm.Get("waterSource"),
		Budget:          models.FlexString(r.PostForm.Get("budget")),
		Goals:           r.PostForm.Get("goals"),
		AdditionalNotes: r.PostForm.Get("additionalNotes"),
	}
	if year := strings.TrimSpace(r.PostForm.Get("year")); year != "" {
		n, err := strconv.Atoi(year)
		if err != nil {
			return nil, "", apperrors.NewParamValidationError("year must be a number")
		}
		req.Year = n
	}
	return req, r.PostForm.Get("userId"), nil
}

type cropDiagnosisBody struct {
	diagnosecrop.Input
	UserID string `json:"userId"`
}

func decodeCropDiagnosis(r *http.Request) (*models.CropDiagnosisRequest, string, error) {
	if !isForm(r) {
		var body cropDiagnosisBody
		if err := decodeJSON(r, &body); err != nil {
			return nil, "", err
		}
		req, err := body.Input.Request()
		return req, body.UserID, err
	}

	if err := parseForm(r); err != nil {
		return nil, "", err
	}
	input := diagnosecrop.Input{
		CropDiagnosisRequest: models.CropDiagnosisRequest{
			CropType:        r.PostForm.Get("cropType"),
			Symptoms:        r.PostForm.Get("symptoms"),
			Location:        r.PostForm.Get("location"),
			AdditionalNotes: r.PostForm.Get("additionalNotes"),
		},
		ImageBase64:   r.PostForm.Get("imageBase64"),
		ImageMimeType: r.PostForm.Get("imageMimeType"),
	}
	userID := r.PostForm.Get("userId")

	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["image"]; len(files) > 0 {
			media, err := readImage(files[0])
			if err != nil {
				return nil, "", err
			}
			input.CropDiagnosisRequest.Image = media
			input.ImageBase64 = ""
		}
	}

	req, err := input.Request()
	return req, userID, err
}

func readImage(fh *multipart.FileHeader) (*models.Media, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewParamValidationError("image upload could not be read")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, models.MaxImageBytes+1))
	if err != nil {
		return nil, bodyError(err, "image upload could not be read")
	}
	return models.NewMedia(data, fh.Header.Get("Content-Type")), nil
}

type weatherAdvisoryBody struct {
	models.WeatherAdvisoryRequest
	UserID string `json:"userId"`
}

func decodeWeatherAdvisory(r *http.Request) (*models.WeatherAdvisoryRequest, string, error) {
	var body weatherAdvisoryBody
	if !isForm(r) {
		if err := decodeJSON(r, &body); err != nil {
			return nil, "", err
		}
		return &body.WeatherAdvisoryRequest, body.UserID, nil
	}

	if err := parseForm(r); err != nil {
		return nil, "", err
	}
	req := &models.WeatherAdvisoryRequest{
		Location:        r.PostForm.Get("location"),
		Crops:           formList(r, "crops"),
		AdditionalNotes: r.PostForm.Get("additionalNotes"),
		AlertPhone:      r.PostForm.Get("alertPhone"),
	}
	if err := formJSON(r, "current", &req.Current); err != nil {
		return nil, "", err
	}
	if err := formJSON(r, "forecast", &req.Forecast); err != nil {
		return nil, "", err
	}
	return req, r.PostForm.Get("userId"), nil
}

package api

import (
	"context"
	"net/http"
	"time"

	"agri-pipeline/internal/models"
	"agri-pipeline/internal/pipeline"
	"agri-pipeline/internal/store"
)

type annualPlanData struct {
	*models.AnnualPlan
	Context    *models.ContextBundle `json:"context,omitempty"`
	RequestID  string                `json:"requestId"`
	Provenance pipeline.Provenance   `json:"provenance"`
	Persisted  *bool                 `json:"persisted,omitempty"`
}

type cropDiagnosisData struct {
	*models.CropDiagnosis
	Context    *models.ContextBundle `json:"context,omitempty"`
	RequestID  string                `json:"requestId"`
	Provenance pipeline.Provenance   `json:"provenance"`
	Persisted  *bool                 `json:"persisted,omitempty"`
}

type weatherAdvisoryData struct {
	*models.WeatherAdvisory
	Context    *models.ContextBundle `json:"context,omitempty"`
	RequestID  string                `json:"requestId"`
	Provenance pipeline.Provenance   `json:"provenance"`
	AlertSent  bool                  `json:"alertSent"`
	Persisted  *bool                 `json:"persisted,omitempty"`
}

func limitBody(w http.ResponseWriter, r *http.Request, limit int64) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
}

func (s *Server) handleAnnualPlan(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, s.opts.MaxUploadBytes)
	req, userID, err := decodeAnnualPlan(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out, err := s.opts.Plans.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeSuccess(w, annualPlanData{
		AnnualPlan: out.Plan,
		Context:    out.Context,
		RequestID:  out.RequestID,
		Provenance: out.Provenance,
		Persisted:  s.persist(r.Context(), userID, models.KindAnnualPlan, out.Plan, out.GeneratedAt),
	})
}

func (s *Server) handleCropDiagnosis(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, s.opts.MaxImageUploadBytes)
	req, userID, err := decodeCropDiagnosis(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out, err := s.opts.Diagnoses.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeSuccess(w, cropDiagnosisData{
		CropDiagnosis: out.Diagnosis,
		Context:       out.Context,
		RequestID:     out.RequestID,
		Provenance:    out.Provenance,
		Persisted:     s.persist(r.Context(), userID, models.KindCropDiagnosis, out.Diagnosis, out.GeneratedAt),
	})
}

func (s *Server) handleWeatherAdvisory(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r, s.opts.MaxUploadBytes)
	req, userID, err := decodeWeatherAdvisory(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out, err := s.opts.Advisories.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeSuccess(w, weatherAdvisoryData{
		WeatherAdvisory: out.Advisory,
		Context:         out.Context,
		RequestID:       out.RequestID,
		Provenance:      out.Provenance,
		AlertSent:       out.AlertSent,
		Persisted:       s.persist(r.Context(), userID, models.KindWeatherAdvisory, out.Advisory, out.GeneratedAt),
	})
}

// persist saves a completed result for userID. It returns nil when nothing
// was attempted; a failed save is logged and reported as false.
func (s *Server) persist(ctx context.Context, userID string, kind models.RequestKind, result interface{}, generatedAt time.Time) *bool {
	if userID == "" || s.opts.Store == nil {
		return nil
	}

	ok := false
	rec, err := store.NewRecord(userID, kind, result, generatedAt)
	if err == nil {
		err = s.opts.Store.Save(ctx, rec)
	}
	if err != nil {
		s.logger.Error("failed to persist result", map[string]interface{}{
			"userId":  userID,
			"kind":    string(kind),
			"backend": s.opts.Store.Backend(),
			"error":   err.Error(),
		})
		return &ok
	}
	ok = true
	return &ok
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, s.opts.Registry)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.opts.Registry.Find(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Unknown task"})
		return
	}
	writeSuccess(w, task)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.opts.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"checks": failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

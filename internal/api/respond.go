package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "agri-pipeline/internal/common/errors"
)

type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: data})
}

// writeError maps err onto a status and a stable message. Details are
// included outside production only.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Request body is too large"})
		return
	}

	pe := apperrors.Normalize(apperrors.StageValidation, err)
	resp := errorResponse{Error: pe.UserMessage()}
	if !s.opts.Production {
		resp.Details = pe.Details
	}
	writeJSON(w, pe.HTTPStatus(), resp)
}

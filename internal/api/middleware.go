package api

import (
	"net/http"
	"time"

	apperrors "agri-pipeline/internal/common/errors"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"durationMs": time.Since(start).Milliseconds(),
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields)
			return
		}
		s.logger.Debug("request served", fields)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("handler panic", map[string]interface{}{
					"path":  r.URL.Path,
					"panic": v,
				})
				s.writeError(w, apperrors.NewInternalError(apperrors.StageValidation, nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

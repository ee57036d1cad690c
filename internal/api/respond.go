package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gwi.com/onboarding-backend/internal/core"
	"gwi.com/onboarding-backend/internal/extract"
	"gwi.com/onboarding-backend/internal/store"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps service errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var (
		validation  *core.ValidationError
		extraction  *extract.ExtractionError
		noProfile   *core.ProfileNotFoundError
		notAnalyzed *core.CodebaseNotAnalyzedError
		noPlan      *core.PlanNotFoundError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &extraction):
		return http.StatusUnprocessableEntity, "extraction_failed"
	case errors.As(err, &noProfile):
		return http.StatusNotFound, "profile_not_found"
	case errors.As(err, &notAnalyzed):
		return http.StatusNotFound, "codebase_not_analyzed"
	case errors.As(err, &noPlan):
		return http.StatusNotFound, "plan_not_found"
	case store.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}
	writeError(w, status, message, code)
}

package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"mediagrab/internal/core/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   domain.Kind `json:"error"`
	Detail  string      `json:"detail"`
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidInput, domain.KindProbe, domain.KindParse:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTimeout:
		return http.StatusRequestTimeout
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind, msg := domain.Classify(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "kind", kind, "status", status, "error", err)
	}
	respondJSON(w, status, ErrorResponse{Success: false, Error: kind, Detail: msg})
}

package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// Envelope wraps a payload with response metadata.
func Envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"run_id":    uuid.NewString(),
		},
	}
}

// WriteJSON encodes data with the given status code.
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError maps err to a status code and writes {"error": message}.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		log.Warn().Err(err).Int("status", status).Msg("Request rejected")
	}
	WriteJSON(w, log, status, map[string]string{"error": err.Error()})
}

// StatusForError maps the analytics error taxonomy onto HTTP status codes.
func StatusForError(err error) int {
	var (
		connErr      *domain.ConnectivityError
		noData       *domain.NoDataError
		insufficient *domain.InsufficientDataError
		degenerate   *domain.DegenerateInputError
		infeasible   *domain.OptimizationInfeasibleError
		unavailable  *domain.DependencyUnavailableError
	)

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	case errors.As(err, &noData):
		return http.StatusNotFound
	case errors.As(err, &insufficient), errors.As(err, &degenerate), errors.As(err, &infeasible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

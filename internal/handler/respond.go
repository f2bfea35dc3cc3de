package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexhub/outreach-backend/internal/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the engine's error taxonomy onto HTTP statuses. Raw errors
// never cross the boundary unwrapped.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *apperrors.ValidationError
		notFound   *apperrors.NotFoundError
		transition *apperrors.InvalidTransitionError
		schedule   *apperrors.InvalidScheduleError
		rateLimit  *apperrors.RateLimitError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": transition.Error()})
	case errors.As(err, &schedule):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": schedule.Error()})
	case errors.As(err, &rateLimit):
		w.Header().Set("Retry-After", rateLimit.RetryAfter.String())
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": rateLimit.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

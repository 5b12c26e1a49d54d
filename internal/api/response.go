package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// Pre-marshaled fallback response to avoid runtime JSON encoding failures.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first to catch encoding errors before writing headers.
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeError maps an engine error to an HTTP status and writes the response.
func writeError(w http.ResponseWriter, err error) {
	writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
}

// statusForError maps the engine's sentinel errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrChallengeNotFound),
		errors.Is(err, models.ErrEnrollmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyParticipating),
		errors.Is(err, models.ErrDailyRecordExists),
		errors.Is(err, models.ErrNotPending),
		errors.Is(err, models.ErrChallengeNotActive),
		errors.Is(err, models.ErrChallengeInactive),
		errors.Is(err, models.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrInsufficientPermissions):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidRecordData),
		errors.Is(err, models.ErrRecordTypeMismatch),
		errors.Is(err, models.ErrMissingCustomerID),
		errors.Is(err, models.ErrMissingChallengeID),
		errors.Is(err, models.ErrMissingEnrollmentID),
		errors.Is(err, models.ErrNonPositiveAmount),
		errors.Is(err, models.ErrNoColors),
		errors.Is(err, models.ErrMissingDIIScore),
		errors.Is(err, models.ErrNonPositiveFastingHours),
		errors.Is(err, models.ErrConditionScoreOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

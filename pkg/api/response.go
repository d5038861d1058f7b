package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/graph-sparsification-service/pkg/datasets"
	"github.com/gilchrisn/graph-sparsification-service/pkg/experiment"
	"github.com/gilchrisn/graph-sparsification-service/pkg/sparsify"
)

// WriteSuccessResponse writes a successful JSON response
func WriteSuccessResponse(w http.ResponseWriter, message string, data interface{}) {
	WriteSuccessResponseWithStatus(w, http.StatusOK, message, data)
}

// WriteSuccessResponseWithStatus writes a successful JSON response with a custom status code
func WriteSuccessResponseWithStatus(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	writeJSONResponse(w, statusCode, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WriteErrorResponse writes an error JSON response
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	response := APIResponse{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	writeJSONResponse(w, statusCode, response)
}

// WriteValidationErrorResponse writes a 400 listing each failed field
func WriteValidationErrorResponse(w http.ResponseWriter, message string, err error) {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}

	writeJSONResponse(w, http.StatusBadRequest, APIResponse{
		Success: false,
		Message: message,
		Data:    map[string]interface{}{"validation_errors": fields},
		Error:   err.Error(),
	})
}

// WriteDomainError maps a runner or optimizer error to its HTTP status
func WriteDomainError(w http.ResponseWriter, message string, err error) {
	WriteErrorResponse(w, statusForError(err), message, err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, experiment.ErrInvalidConfig),
		errors.Is(err, sparsify.ErrUnknownSparsifier),
		errors.Is(err, sparsify.ErrInvalidKeepRatio),
		errors.Is(err, sparsify.ErrFeaturesRequired):
		return http.StatusBadRequest
	case errors.Is(err, datasets.ErrDatasetNotFound),
		errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONResponse is a helper function to write JSON responses
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("Failed to encode JSON response")
	}
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/forPelevin/scribe/internal/types"
)

// statusFor maps an engine failure kind to an HTTP status.
func statusFor(err error) int {
	switch types.KindOf(err) {
	case types.ErrURLInvalid, types.ErrVideoIDUnresolvable:
		return http.StatusBadRequest
	case types.ErrFormatUnavailable:
		return http.StatusNotFound
	case types.ErrSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case types.ErrEmptyFile, types.ErrNetwork, types.ErrDownloadFailed:
		return http.StatusBadGateway
	case types.ErrModelLoadFailed:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorCode(err error) string {
	if k := types.KindOf(err); k != nil {
		return k.Error()
	}
	return "internal error"
}

type errorResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, errorResponse{Status: "error", Message: message})
}

func respondWithEngineError(w http.ResponseWriter, err error) {
	respondWithJSON(w, statusFor(err), errorResponse{
		Status:  "error",
		Message: err.Error(),
		Code:    errorCode(err),
	})
}

// formatValidationErrors lists failed fields and tags.
func formatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (%s)", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}

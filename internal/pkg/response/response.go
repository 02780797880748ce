// Package response provides JSON response helpers for API handlers.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/mcryptoex/tempo/internal/pkg/apierror"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"code":"internal_error","detail":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Accepted writes a 202 Accepted response.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, data)
}

// Error writes an error response, mapping the tagged error to its status code.
func Error(w http.ResponseWriter, err error) {
	apiErr := apierror.As(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	json.NewEncoder(w).Encode(apiErr)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, detail string) {
	Error(w, apierror.NewNotFoundError(detail))
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, detail string) {
	Error(w, apierror.ErrBadRequest.WithDetail(detail))
}

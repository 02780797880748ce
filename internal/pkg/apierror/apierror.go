// Package apierror provides the tagged error type shared by the API and the
// quote engine: a status code plus a machine-readable code and human detail.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a standardized API error carrying its HTTP status code.
type Error struct {
	Code       string `json:"code"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Detail
}

// WithDetail returns a copy of the error with a custom detail message.
func (e *Error) WithDetail(detail string) *Error {
	return &Error{
		Code:       e.Code,
		Detail:     detail,
		StatusCode: e.StatusCode,
	}
}

// Standard error definitions
var (
	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = &Error{
		Code:       "bad_request",
		Detail:     "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = &Error{
		Code:       "not_found",
		Detail:     "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	// ErrUnprocessable is returned when a request is well-formed but
	// semantically invalid (unknown token, zero amount, same-token swap).
	ErrUnprocessable = &Error{
		Code:       "unprocessable",
		Detail:     "Request cannot be processed",
		StatusCode: http.StatusUnprocessableEntity,
	}

	// ErrSanctionedWallet is returned when a wallet is blocked by the
	// operator sanctions policy.
	ErrSanctionedWallet = &Error{
		Code:       "sanctioned_wallet",
		Detail:     "Wallet blocked by operator sanctions policy",
		StatusCode: http.StatusForbidden,
	}

	// ErrGeoBlocked is returned when the request originates from a
	// geofenced country.
	ErrGeoBlocked = &Error{
		Code:       "geo_blocked",
		Detail:     "Request blocked by operator geofencing policy",
		StatusCode: http.StatusUnavailableForLegalReasons,
	}

	// ErrServiceUnavailable is returned when a dependent service is unavailable.
	ErrServiceUnavailable = &Error{
		Code:       "service_unavailable",
		Detail:     "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &Error{
		Code:       "internal_error",
		Detail:     "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
)

// NewValidationError creates a 422 error for a specific field.
func NewValidationError(field, detail string) *Error {
	return &Error{
		Code:       "validation_error",
		Detail:     fmt.Sprintf("%s: %s", field, detail),
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewNotFoundError creates a 404 error with a custom detail message.
func NewNotFoundError(detail string) *Error {
	return &Error{
		Code:       "not_found",
		Detail:     detail,
		StatusCode: http.StatusNotFound,
	}
}

// As converts an error to an *Error if possible, falling back to ErrInternal.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}

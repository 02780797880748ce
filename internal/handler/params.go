package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/mcryptoex/tempo/internal/pkg/apierror"
)

// queryInt parses an integer query parameter with a default and an inclusive
// range, returning a 422 validation error on violations.
func queryInt(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.NewValidationError(name, "must be an integer")
	}
	if value < min || value > max {
		return 0, apierror.NewValidationError(name, fmt.Sprintf("must be between %d and %d", min, max))
	}
	return value, nil
}

// queryChainID parses an optional positive chain_id parameter; 0 means unset.
func queryChainID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("chain_id")
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, apierror.NewValidationError("chain_id", "must be a positive integer")
	}
	return value, nil
}

// queryBool parses a boolean query parameter with a default.
func queryBool(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return value
}

// Package middleware provides HTTP middleware for the tempo API.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/mcryptoex/tempo/internal/config"
)

// CORS returns a CORS middleware allowing the configured origins.
func CORS(origins string) func(next http.Handler) http.Handler {
	allowed := config.CSV(origins)
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:3300"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

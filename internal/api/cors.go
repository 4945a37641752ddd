package api

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS lets the listed browser origins call h. Preflight requests are
// answered here, before BearerAuth sees them.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})
	return c.Handler(h)
}

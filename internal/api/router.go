package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(h *Handler, authEnabled bool, token string) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Configuration document.
	r.Get("/config", h.GetConfig)

	// Surfaces.
	r.Get("/surfaces", h.ListSurfaces)
	r.Post("/surfaces/{id}/requests", h.PostRequest)
	r.Get("/watch", h.Watch)
	r.Get("/events", h.Events)

	// Journal.
	r.Get("/history", h.History)

	return r
}

// Package api implements the Raido REST API using chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Link graph queries.
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/links/*", h.Links)
	r.Get("/distance", h.Distance)
	r.Get("/connected/*", h.Connected)
	r.Get("/broken", h.Broken)
	r.Get("/validate", h.Validate)
	r.Get("/resolve", h.Resolve)
	r.Get("/graph", h.Graph)

	// Index management.
	r.Get("/stats", h.Stats)
	r.Post("/rebuild", h.Rebuild)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

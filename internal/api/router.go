package api

import (
	"codesync/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing first, then recovery, then CORS.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Edit history (read-only; the relay pipeline writes it)
	api.HandleFunc("/v1/snippets/{id}/edits", h.withAuth(h.ListSnippetEdits)).Methods("GET")

	api.HandleFunc("/health", h.Health).Methods("GET")

	// The collaboration socket; join/leave happen via frames after connect
	r.HandleFunc("/ws", h.HandleWebSocket)

	return r
}

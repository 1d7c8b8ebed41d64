package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"codesync/internal/auth"
	"codesync/internal/models"
	"codesync/internal/relay"
	"codesync/internal/repository"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// SnippetStore is what the handlers need from the snippet repository.
// Consumer-driven: only the calls made here are declared here.
type SnippetStore interface {
	GetAuthorization(ctx context.Context, snippetID string) (*models.Authorization, error)
}

// EditStore serves the read-only edit history endpoint.
type EditStore interface {
	ListBySnippet(ctx context.Context, snippetID string, limit, offset int) ([]*models.CodeEdit, error)
}

// Handler handles HTTP requests and WebSocket handshakes.
type Handler struct {
	hub      *relay.Hub
	verifier *auth.Verifier
	snippets SnippetStore
	edits    EditStore
	upgrader websocket.Upgrader
}

func NewHandler(hub *relay.Hub, verifier *auth.Verifier, snippets SnippetStore, edits EditStore, allowedOrigins []string) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		snippets: snippets,
		edits:    edits,
		upgrader: newUpgrader(allowedOrigins),
	}
}

type contextKey string

const userIDKey contextKey = "user_id"

// maxEditPageSize caps one history page.
const maxEditPageSize = 500

// withAuth verifies the request credential and stores the resolved user
// id in the request context.
func (h *Handler) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.verifier.Verify(auth.TokenFromRequest(r))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

// ListSnippetEdits returns a snippet's edit history to its owner or a
// collaborator. The history is append-only and ordered by acceptance.
func (h *Handler) ListSnippetEdits(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	snippetID := vars["id"]
	userID, _ := r.Context().Value(userIDKey).(string)

	authz, err := h.snippets.GetAuthorization(r.Context(), snippetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "snippet not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !authz.Allows(userID) {
		http.Error(w, "access denied: not a collaborator or owner", http.StatusForbidden)
		return
	}

	// Unparseable or non-positive values fall back to the defaults; a
	// negative limit would otherwise tell GORM to return everything.
	limit := 100 // default
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	if limit > maxEditPageSize {
		limit = maxEditPageSize
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset > 0 {
			offset = parsedOffset
		}
	}

	edits, err := h.edits.ListBySnippet(r.Context(), snippetID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"edits":  edits,
		"limit":  limit,
		"offset": offset,
	})
}

// Health reports liveness plus the persistence backlog.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":              "ok",
		"persist_queue_depth": h.hub.QueueDepth(),
	})
}

package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"codesync/internal/auth"
	"codesync/internal/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

// newUpgrader builds the handshake upgrader. An empty allow list
// accepts every Origin; otherwise the header must match one entry.
// Requests without an Origin header (non-browser clients) always pass.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}
}

// HandleWebSocket authenticates the handshake and admits the connection
// to the relay. Verification happens before the upgrade: a bad
// credential gets a plain 401 and never receives a frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect")
	defer span.End()

	userID, err := h.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("failed to upgrade websocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	// The request context dies with this handler; the pumps outlive it.
	h.hub.Serve(context.Background(), conn, userID)
}

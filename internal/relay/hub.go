package relay

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"codesync/internal/models"

	"github.com/gorilla/websocket"
)

// Hub is the relay core: it admits authenticated connections, tracks
// per-snippet presence, fans out accepted edits, and hands persistence
// to the pipeline. All registry and presence mutation happens under one
// mutex, so each frame's in-memory state change completes atomically
// before any other frame's begins. Gateway I/O happens outside the
// lock and never blocks other connections.
type Hub struct {
	mu       sync.Mutex
	registry *Registry
	presence *Presence

	gateway  Gateway
	pipeline *Pipeline

	now func() time.Time
}

func NewHub(gateway Gateway, workers, queueSize int) *Hub {
	return &Hub{
		registry: NewRegistry(),
		presence: NewPresence(),
		gateway:  gateway,
		pipeline: NewPipeline(gateway, workers, queueSize),
		now:      time.Now,
	}
}

// Start brings up the persistence pipeline workers.
func (h *Hub) Start() {
	h.pipeline.Start()
}

// Serve admits an authenticated, upgraded connection and runs its pumps
// until the transport closes. The caller has already verified the
// credential; an unauthenticated socket never reaches the hub.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, userID string) *Conn {
	c := newConn(h, ws, userID)

	h.mu.Lock()
	h.registry.Admit(c, userID)
	total := h.registry.Len()
	h.mu.Unlock()

	log.Printf("conn %s admitted (user %s, %d connected)", c.ID, userID, total)

	go c.writePump()
	go c.readPump(ctx)
	return c
}

// Disconnect removes c and runs leave cleanup for every snippet it had
// joined, as if the client had sent leave_snippet for each. Idempotent:
// the read pump and Shutdown may both call it.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	joined := h.registry.Remove(c)
	snaps := make([]Snapshot, 0, len(joined))
	for _, snippetID := range joined {
		snap, wentInactive := h.presence.Leave(snippetID, c.UserID)
		if wentInactive {
			h.broadcastPresence(snippetID, nil, models.FrameUserLeft, c.UserID)
		}
		snaps = append(snaps, snap)
	}
	h.mu.Unlock()

	c.shutdown()

	if len(joined) > 0 {
		log.Printf("conn %s disconnected, left %d snippet(s)", c.ID, len(joined))
	}
	for _, snap := range snaps {
		h.saveSession(context.Background(), nil, snap)
	}
}

// ActiveUsers returns the live active-user set for a snippet.
func (h *Hub) ActiveUsers(snippetID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence.ActiveUsers(snippetID)
}

// QueueDepth reports pending persistence jobs, for the health endpoint.
func (h *Hub) QueueDepth() int {
	return h.pipeline.Depth()
}

// Shutdown closes every connection and drains the persistence pipeline.
func (h *Hub) Shutdown() {
	log.Println("shutting down relay hub...")

	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.registry.conns))
	for c := range h.registry.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.Disconnect(c)
		if c.ws != nil {
			c.ws.Close()
		}
	}

	h.pipeline.Shutdown()
	log.Println("relay hub shutdown complete")
}

// saveSession pushes a presence snapshot to the store. In-memory
// presence is authoritative; a store failure surfaces as an error frame
// on the originating connection and nothing is rolled back.
func (h *Hub) saveSession(ctx context.Context, origin *Conn, snap Snapshot) {
	if err := h.gateway.SaveSession(ctx, snap.SnippetID, snap.IsLive, snap.ActiveUsers, snap.StartedAt); err != nil {
		log.Printf("save session for snippet %s: %v", snap.SnippetID, err)
		if origin != nil {
			origin.sendError("failed to persist session state")
		}
	}
}

// broadcastPresence queues a user_joined/user_left frame for every
// other connection in the room. Caller holds h.mu.
func (h *Hub) broadcastPresence(snippetID string, origin *Conn, frameType, userID string) {
	msg, err := json.Marshal(models.PresenceEvent{
		Type:      frameType,
		SnippetID: snippetID,
		UserID:    userID,
	})
	if err != nil {
		return
	}
	h.registry.ForEachInDocument(snippetID, origin, func(peer *Conn) {
		peer.queue(msg)
	})
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"codesync/internal/middleware"
	"codesync/internal/models"
	"codesync/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// HandleFrame parses, validates, and dispatches one inbound frame.
// Malformed input produces an error frame and the connection stays
// open; only authentication failure (handled before admission) is
// terminal.
func (h *Hub) HandleFrame(ctx context.Context, c *Conn, raw []byte) {
	ctx, span := middleware.StartSpan(ctx, "Relay.HandleFrame",
		attribute.String("conn.id", c.ID),
		attribute.String("user.id", c.UserID),
		attribute.Int("frame.size", len(raw)),
	)
	defer span.End()

	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.sendError("invalid message format")
		return
	}

	if frame.Type == "" || frame.SnippetID == "" {
		c.sendError("missing required fields")
		return
	}

	span.SetAttributes(
		attribute.String("frame.type", frame.Type),
		attribute.String("snippet.id", frame.SnippetID),
	)

	switch frame.Type {
	case models.FrameJoinSnippet:
		h.handleJoin(ctx, c, frame.SnippetID)
	case models.FrameLeaveSnippet:
		h.handleLeave(ctx, c, frame.SnippetID)
	case models.FrameCodeChange:
		h.handleCodeChange(ctx, c, &frame)
	default:
		c.sendError("unknown message type")
	}
}

// handleJoin admits c to the snippet's live room. Authorization is
// resolved from the store before any state changes; a caller without
// owner or collaborator standing gets an error frame and no mutation.
func (h *Hub) handleJoin(ctx context.Context, c *Conn, snippetID string) {
	authz, err := h.gateway.GetAuthorization(ctx, snippetID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		if errors.Is(err, repository.ErrNotFound) {
			c.sendError("snippet not found")
		} else {
			log.Printf("conn %s: resolve snippet %s: %v", c.ID, snippetID, err)
			c.sendError("failed to resolve snippet")
		}
		return
	}
	if !authz.Allows(c.UserID) {
		c.sendError("not a collaborator or owner")
		return
	}

	h.mu.Lock()
	if !h.registry.RecordJoin(c, snippetID) {
		// Already joined from this connection; re-ack with the current set.
		users := h.presence.ActiveUsers(snippetID)
		h.mu.Unlock()
		c.sendJSON(models.JoinedAck{Type: models.FrameJoined, SnippetID: snippetID, ActiveUsers: users})
		return
	}
	snap, newlyActive := h.presence.Join(snippetID, c.UserID)
	if newlyActive {
		h.broadcastPresence(snippetID, c, models.FrameUserJoined, c.UserID)
	}
	h.mu.Unlock()

	h.saveSession(ctx, c, snap)
	c.sendJSON(models.JoinedAck{Type: models.FrameJoined, SnippetID: snippetID, ActiveUsers: snap.ActiveUsers})
}

// handleLeave removes c from the snippet's live room. Leaving a room
// the connection never joined is a no-op.
func (h *Hub) handleLeave(ctx context.Context, c *Conn, snippetID string) {
	h.mu.Lock()
	if !h.registry.RecordLeave(c, snippetID) {
		h.mu.Unlock()
		return
	}
	snap, wentInactive := h.presence.Leave(snippetID, c.UserID)
	if wentInactive {
		h.broadcastPresence(snippetID, c, models.FrameUserLeft, c.UserID)
	}
	h.mu.Unlock()

	h.saveSession(ctx, c, snap)
}

// handleCodeChange fans an accepted edit out to the room, then hands
// the record to the persistence pipeline. Fan-out never waits on
// storage.
func (h *Hub) handleCodeChange(ctx context.Context, c *Conn, frame *models.Frame) {
	if frame.Code == nil || frame.Action == "" || frame.StartLine == nil || frame.EndLine == nil {
		c.sendError("missing required fields")
		return
	}

	event := models.CodeChangeEvent{
		Type:      models.FrameCodeChange,
		SnippetID: frame.SnippetID,
		Code:      *frame.Code,
		Action:    models.EditAction(frame.Action),
		StartLine: *frame.StartLine,
		EndLine:   *frame.EndLine,
		UserID:    c.UserID,
		Timestamp: h.now().UTC(),
	}
	msg, err := json.Marshal(event)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		c.sendError("invalid message format")
		return
	}

	h.mu.Lock()
	if !h.registry.Joined(c, frame.SnippetID) {
		h.mu.Unlock()
		c.sendError("not joined to snippet")
		return
	}
	h.registry.ForEachInDocument(frame.SnippetID, c, func(peer *Conn) {
		if !peer.queue(msg) {
			log.Printf("conn %s: send buffer full, dropping code_change", peer.ID)
		}
	})
	// Enqueue under the same lock: edits on one snippet reach their
	// shard queue in broadcast order, so the history is appended in the
	// order the room saw the changes.
	h.pipeline.Enqueue(c, &models.CodeEdit{
		SnippetID: event.SnippetID,
		UserID:    event.UserID,
		Action:    event.Action,
		StartLine: event.StartLine,
		EndLine:   event.EndLine,
		Code:      event.Code,
		Timestamp: event.Timestamp,
	})
	h.mu.Unlock()
}

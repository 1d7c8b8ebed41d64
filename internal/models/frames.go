package models

import "time"

// Inbound frame types.
const (
	FrameJoinSnippet  = "join_snippet"
	FrameLeaveSnippet = "leave_snippet"
	FrameCodeChange   = "code_change"
)

// Outbound frame types. code_change is reused verbatim on the way out,
// enriched with the author and a server-assigned timestamp.
const (
	FrameJoined     = "joined"
	FrameUserJoined = "user_joined"
	FrameUserLeft   = "user_left"
)

// Frame is one inbound client message. Pointer fields distinguish a
// missing field from a zero value during validation: startLine 0 is a
// valid line, an absent startLine is not.
type Frame struct {
	Type      string  `json:"type"`
	SnippetID string  `json:"snippetId"`
	Code      *string `json:"code,omitempty"`
	Action    string  `json:"action,omitempty"`
	StartLine *int    `json:"startLine,omitempty"`
	EndLine   *int    `json:"endLine,omitempty"`
}

// CodeChangeEvent is the fan-out frame delivered to every other
// connection joined to the snippet.
type CodeChangeEvent struct {
	Type      string     `json:"type"`
	SnippetID string     `json:"snippetId"`
	Code      string     `json:"code"`
	Action    EditAction `json:"action"`
	StartLine int        `json:"startLine"`
	EndLine   int        `json:"endLine"`
	UserID    string     `json:"userId"`
	Timestamp time.Time  `json:"timestamp"`
}

// PresenceEvent announces a membership change in a snippet's live room.
type PresenceEvent struct {
	Type      string `json:"type"`
	SnippetID string `json:"snippetId"`
	UserID    string `json:"userId"`
}

// JoinedAck confirms admission and carries the active-user set so the
// client can render who else is in the room.
type JoinedAck struct {
	Type        string   `json:"type"`
	SnippetID   string   `json:"snippetId"`
	ActiveUsers []string `json:"activeUsers"`
}

// ErrorFrame goes back to the originating connection only. Retriable
// marks failures the client may resubmit, such as a concurrent
// persistence conflict.
type ErrorFrame struct {
	Error     string `json:"error"`
	Retriable bool   `json:"retriable,omitempty"`
}

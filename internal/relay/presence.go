package relay

import "time"

// session is the live presence state for one snippet. refs counts
// connections per user, so a user editing from two tabs stays in the
// active set until the last tab leaves.
type session struct {
	active    []string
	refs      map[string]int
	startedAt time.Time
}

// Snapshot is the presence state handed to the gateway after each
// transition. A cold snapshot has IsLive false and StartedAt nil.
type Snapshot struct {
	SnippetID   string
	IsLive      bool
	ActiveUsers []string
	StartedAt   *time.Time
}

// Presence tracks which users are live on which snippets. A session
// exists only while at least one user is joined; it goes cold when the
// set empties. Like the Registry, it relies on the hub's mutex for
// serialization.
type Presence struct {
	sessions map[string]*session
	now      func() time.Time
}

func NewPresence() *Presence {
	return &Presence{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Join adds userID to snippetID's active set, creating the session on
// first join. startedAt is set only when the session was previously
// cold. Reports whether the user was newly added to the active set.
func (p *Presence) Join(snippetID, userID string) (Snapshot, bool) {
	s := p.sessions[snippetID]
	if s == nil {
		s = &session{
			refs:      make(map[string]int),
			startedAt: p.now(),
		}
		p.sessions[snippetID] = s
	}

	newlyActive := s.refs[userID] == 0
	if newlyActive {
		s.active = append(s.active, userID)
	}
	s.refs[userID]++

	return p.snapshot(snippetID, s), newlyActive
}

// Leave drops one reference for userID. The user stays active while
// another of their connections remains joined. When the active set
// empties the session goes cold. Reports whether the user left the
// active set.
func (p *Presence) Leave(snippetID, userID string) (Snapshot, bool) {
	s := p.sessions[snippetID]
	if s == nil {
		return p.coldSnapshot(snippetID), false
	}

	wentInactive := false
	if s.refs[userID] > 0 {
		s.refs[userID]--
		if s.refs[userID] == 0 {
			delete(s.refs, userID)
			wentInactive = true
			for i, id := range s.active {
				if id == userID {
					s.active = append(s.active[:i], s.active[i+1:]...)
					break
				}
			}
		}
	}

	if len(s.active) == 0 {
		delete(p.sessions, snippetID)
		return p.coldSnapshot(snippetID), wentInactive
	}

	return p.snapshot(snippetID, s), wentInactive
}

// ActiveUsers returns the current active set for snippetID, in join
// order. Empty when the session is cold.
func (p *Presence) ActiveUsers(snippetID string) []string {
	s := p.sessions[snippetID]
	if s == nil {
		return []string{}
	}
	users := make([]string, len(s.active))
	copy(users, s.active)
	return users
}

// IsLive reports whether snippetID has an active session.
func (p *Presence) IsLive(snippetID string) bool {
	return p.sessions[snippetID] != nil
}

func (p *Presence) snapshot(snippetID string, s *session) Snapshot {
	users := make([]string, len(s.active))
	copy(users, s.active)
	startedAt := s.startedAt
	return Snapshot{
		SnippetID:   snippetID,
		IsLive:      true,
		ActiveUsers: users,
		StartedAt:   &startedAt,
	}
}

func (p *Presence) coldSnapshot(snippetID string) Snapshot {
	return Snapshot{
		SnippetID:   snippetID,
		ActiveUsers: []string{},
	}
}

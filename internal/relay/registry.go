package relay

// connState tracks what the relay knows about one live connection.
type connState struct {
	userID string
	joined map[string]bool
}

// Registry maps live connections to their authenticated identity and
// joined snippets, with a per-snippet index so fan-out never scans the
// full connection list. It does no locking of its own: the hub
// serializes all access under one mutex.
type Registry struct {
	conns map[*Conn]*connState
	byDoc map[string]map[*Conn]bool
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[*Conn]*connState),
		byDoc: make(map[string]map[*Conn]bool),
	}
}

// Admit registers an authenticated connection with an empty joined set.
func (r *Registry) Admit(c *Conn, userID string) {
	r.conns[c] = &connState{userID: userID, joined: make(map[string]bool)}
}

// RecordJoin adds snippetID to c's joined set and the snippet index.
// It reports whether the join was new; re-joining is a no-op.
func (r *Registry) RecordJoin(c *Conn, snippetID string) bool {
	state, ok := r.conns[c]
	if !ok || state.joined[snippetID] {
		return false
	}

	state.joined[snippetID] = true
	if r.byDoc[snippetID] == nil {
		r.byDoc[snippetID] = make(map[*Conn]bool)
	}
	r.byDoc[snippetID][c] = true
	return true
}

// RecordLeave removes snippetID from c's joined set. It reports whether
// c was actually joined; leaving a non-joined snippet is a no-op.
func (r *Registry) RecordLeave(c *Conn, snippetID string) bool {
	state, ok := r.conns[c]
	if !ok || !state.joined[snippetID] {
		return false
	}

	delete(state.joined, snippetID)
	r.removeFromIndex(c, snippetID)
	return true
}

// Joined reports whether c has joined snippetID.
func (r *Registry) Joined(c *Conn, snippetID string) bool {
	state, ok := r.conns[c]
	return ok && state.joined[snippetID]
}

// ForEachInDocument calls fn for every connection joined to snippetID
// except the originating one.
func (r *Registry) ForEachInDocument(snippetID string, origin *Conn, fn func(*Conn)) {
	for c := range r.byDoc[snippetID] {
		if c == origin {
			continue
		}
		fn(c)
	}
}

// Remove deletes c from the registry and returns the snippets it had
// joined so the caller can run leave cleanup for each.
func (r *Registry) Remove(c *Conn) []string {
	state, ok := r.conns[c]
	if !ok {
		return nil
	}

	joined := make([]string, 0, len(state.joined))
	for snippetID := range state.joined {
		joined = append(joined, snippetID)
		r.removeFromIndex(c, snippetID)
	}

	delete(r.conns, c)
	return joined
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

func (r *Registry) removeFromIndex(c *Conn, snippetID string) {
	if set, ok := r.byDoc[snippetID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.byDoc, snippetID)
		}
	}
}

package session

import "sync"

// group is the ordered set of live sessions of one identity.
type group struct {
	identity string

	mu       sync.Mutex
	sessions []*Session // insertion order, oldest first
	seq      uint64
	dead     bool // removed from the registry; callers must fetch a fresh group
}

func (g *group) find(id string) (*Session, bool) {
	for _, s := range g.sessions {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

func (g *group) driver() (*Session, bool) {
	for _, s := range g.sessions {
		if s.isDriver {
			return s, true
		}
	}
	return nil, false
}

func (g *group) snapshot() []*Session {
	out := make([]*Session, len(g.sessions))
	copy(out, g.sessions)
	return out
}

// The functions below are the role arbitration rules. They are called with
// g.mu held and never perform I/O; they report what must be announced.

// join appends s and decides its role. A session joining an empty group
// drives it; otherwise it follows.
func (g *group) join(s *Session) {
	_, hasDriver := g.driver()
	s.isDriver = !hasDriver
	g.seq++
	s.joined = g.seq
	g.sessions = append(g.sessions, s)
}

// handoff moves the driver role to the session named id, whatever the current
// state. It returns false and changes nothing when id is not in the group.
func (g *group) handoff(id string) (*Session, bool) {
	target, ok := g.find(id)
	if !ok {
		return nil, false
	}
	for _, s := range g.sessions {
		s.isDriver = false
	}
	target.isDriver = true
	return target, true
}

// remove takes s out of the group. When s was the driver and members remain,
// the oldest remaining member is promoted and returned.
func (g *group) remove(s *Session) (removed bool, promoted *Session) {
	idx := -1
	for i, member := range g.sessions {
		if member == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	g.sessions = append(g.sessions[:idx], g.sessions[idx+1:]...)
	s.removed = true
	wasDriver := s.isDriver
	s.isDriver = false

	if wasDriver && len(g.sessions) > 0 {
		promoted = g.sessions[0]
		promoted.isDriver = true
	}
	return true, promoted
}

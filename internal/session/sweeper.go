package session

import (
	"github.com/teleprompter/backend/internal/observability"
)

// Liveness: every session owns a timer armed for the heartbeat timeout and
// re-armed on each heartbeat, so a silent session is evicted even when its
// group sees no control traffic. Sweep performs the same check for a whole
// group and runs after every control message.

// touchLocked records a heartbeat for s. Requires s.group.mu.
func (r *Registry) touchLocked(s *Session) {
	s.lastHeartbeat = r.clock.Now()
	if s.timer != nil {
		s.timer.Reset(r.heartbeatTimeout)
	}
}

// Touch records a heartbeat for s without any other effect.
func (r *Registry) Touch(s *Session) {
	s.group.mu.Lock()
	defer s.group.mu.Unlock()

	if s.removed {
		return
	}
	r.touchLocked(s)
}

// expire is the liveness timer callback of s.
func (r *Registry) expire(s *Session) {
	g := s.group

	g.mu.Lock()
	if s.removed {
		g.mu.Unlock()
		return
	}
	idle := r.clock.Since(s.lastHeartbeat)
	if idle < r.heartbeatTimeout {
		// A heartbeat raced the timer; wait out the remainder.
		s.timer.Reset(r.heartbeatTimeout - idle)
		g.mu.Unlock()
		return
	}
	evicted, announce := r.evictLocked(g, []*Session{s})
	g.mu.Unlock()

	r.finishEviction(g, evicted, announce, "timer")
}

// Sweep evicts every session of identity whose last heartbeat is at least the
// heartbeat timeout old and returns their IDs.
func (r *Registry) Sweep(identity string) []string {
	g, ok := r.lookup(identity)
	if !ok {
		return nil
	}

	g.mu.Lock()
	now := r.clock.Now()
	var stale []*Session
	for _, s := range g.sessions {
		if now.Sub(s.lastHeartbeat) >= r.heartbeatTimeout {
			stale = append(stale, s)
		}
	}
	evicted, announce := r.evictLocked(g, stale)
	g.mu.Unlock()

	r.finishEviction(g, evicted, announce, "sweep")

	ids := make([]string, 0, len(evicted))
	for _, s := range evicted {
		ids = append(ids, s.id)
	}
	return ids
}

// evictLocked removes stale sessions from g. When the driver is among them,
// the role ends up with the oldest surviving member, which is announced to
// the group.
func (r *Registry) evictLocked(g *group, stale []*Session) ([]*Session, []delivery) {
	var (
		evicted  []*Session
		promoted bool
	)
	for _, s := range stale {
		removed, p := g.remove(s)
		if !removed {
			continue
		}
		evicted = append(evicted, s)
		if p != nil {
			promoted = true
		}
	}

	if !promoted {
		return evicted, nil
	}
	driver, ok := g.driver()
	if !ok {
		return evicted, nil
	}
	return evicted, roleBroadcastLocked(g, driver)
}

func (r *Registry) finishEviction(g *group, evicted []*Session, announce []delivery, trigger string) {
	if len(evicted) == 0 {
		return
	}

	for _, s := range evicted {
		r.teardown(s)
		observability.Evictions.WithLabelValues(trigger).Inc()
		r.logger.Info().
			Str("identity", s.identity).
			Str("client_id", s.id).
			Str("trigger", trigger).
			Dur("timeout", r.heartbeatTimeout).
			Msg("evicted session with stale heartbeat")
	}

	if len(announce) > 0 {
		observability.RoleChanges.WithLabelValues("eviction").Inc()
		r.dispatch(announce, "role")
	}

	r.reap(g)
}

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/teleprompter/backend/internal/model"
	"github.com/teleprompter/backend/internal/observability"
)

// DefaultHeartbeatTimeout is how long a session may stay silent before it is evicted.
const DefaultHeartbeatTimeout = 60 * time.Second

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("registry closed")

// Config holds configuration for the registry.
type Config struct {
	HeartbeatTimeout       time.Duration
	MaxSessionsPerIdentity int // 0 means unlimited
	Clock                  clockwork.Clock
	Logger                 zerolog.Logger
}

// Registry holds the live sessions of every identity.
//
// Each identity's group has its own lock; r.mu only guards the map itself and
// is never held while a group is being mutated, so identities never block
// each other. Messages are handed to sinks after the group lock is released,
// except a new session's initial frame, which is queued under the lock so it
// always precedes any broadcast.
type Registry struct {
	mu     sync.Mutex
	groups map[string]*group
	closed bool

	heartbeatTimeout time.Duration
	maxSessions      int
	clock            clockwork.Clock
	logger           zerolog.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(config Config) *Registry {
	if config.HeartbeatTimeout <= 0 {
		config.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &Registry{
		groups:           make(map[string]*group),
		heartbeatTimeout: config.HeartbeatTimeout,
		maxSessions:      config.MaxSessionsPerIdentity,
		clock:            config.Clock,
		logger:           config.Logger.With().Str("component", "registry").Logger(),
	}
}

// HeartbeatTimeout returns the eviction threshold.
func (r *Registry) HeartbeatTimeout() time.Duration {
	return r.heartbeatTimeout
}

// acquire returns the identity's group, creating it if absent.
func (r *Registry) acquire(identity string) (*group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}
	g, ok := r.groups[identity]
	if !ok {
		g = &group{identity: identity}
		r.groups[identity] = g
		observability.GroupsActive.Inc()
	}
	return g, true
}

func (r *Registry) lookup(identity string) (*group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[identity]
	return g, ok
}

// reap drops g from the map once it is empty.
func (r *Registry) reap(g *group) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dead || len(g.sessions) > 0 {
		return
	}
	g.dead = true
	if r.groups[g.identity] == g {
		delete(r.groups, g.identity)
		observability.GroupsActive.Dec()
	}
}

// Register adds a session for identity with the given client ID and sink.
// The new session drives the group if the group has no driver; the decision
// and the insert happen in one critical section. The initial role frame is
// queued on the sink before Register returns.
func (r *Registry) Register(identity, id string, sink Sink) (*Session, error) {
	if id == "" {
		return nil, model.ErrClientIDRequired
	}

	for {
		g, ok := r.acquire(identity)
		if !ok {
			return nil, ErrClosed
		}

		g.mu.Lock()
		if g.dead {
			// Reaped between acquire and lock; retry on a fresh group.
			g.mu.Unlock()
			continue
		}

		if _, exists := g.find(id); exists {
			g.mu.Unlock()
			return nil, model.ErrDuplicateSession
		}
		if r.maxSessions > 0 && len(g.sessions) >= r.maxSessions {
			g.mu.Unlock()
			return nil, model.ErrSessionLimit
		}

		s := &Session{
			id:            id,
			identity:      identity,
			group:         g,
			sink:          sink,
			lastHeartbeat: r.clock.Now(),
		}
		g.join(s)
		s.timer = r.clock.AfterFunc(r.heartbeatTimeout, func() { r.expire(s) })

		driver, _ := g.driver()
		role := RoleFollower
		if s.isDriver {
			role = RoleDriver
		}
		sendErr := sink.Send(encodeRole(role, driver.id))
		size := len(g.sessions)
		g.mu.Unlock()

		observability.SessionsActive.Inc()
		if role == RoleDriver {
			observability.RoleChanges.WithLabelValues("connect").Inc()
		}
		if sendErr != nil {
			observability.SendFailures.Inc()
			r.logger.Warn().Err(sendErr).Str("identity", identity).Str("client_id", id).Msg("failed to queue initial frame")
		}

		r.logger.Info().
			Str("identity", identity).
			Str("client_id", id).
			Str("role", string(role)).
			Int("group_size", size).
			Msg("session connected")

		return s, nil
	}
}

// Unregister removes the session with the given ID. It reports whether a
// session was removed.
func (r *Registry) Unregister(identity, id string) bool {
	s, ok := r.Find(identity, id)
	if !ok {
		return false
	}
	return r.Release(s)
}

// Release removes exactly s, closing its sink and stopping its liveness
// timer. A newer session that reuses s's ID is untouched. Release is the
// disconnect hook of the streaming endpoints and is safe to call more than once.
func (r *Registry) Release(s *Session) bool {
	g := s.group

	g.mu.Lock()
	removed, promoted := g.remove(s)
	var announce []delivery
	if promoted != nil {
		announce = roleBroadcastLocked(g, promoted)
	}
	remaining := len(g.sessions)
	g.mu.Unlock()

	if !removed {
		return false
	}

	r.teardown(s)
	r.dispatch(announce, "role")
	if promoted != nil {
		observability.RoleChanges.WithLabelValues("disconnect").Inc()
		r.logger.Info().
			Str("identity", s.identity).
			Str("client_id", promoted.id).
			Msg("driver disconnected, promoted oldest remaining session")
	}

	r.logger.Info().
		Str("identity", s.identity).
		Str("client_id", s.id).
		Int("group_size", remaining).
		Msg("session disconnected")

	r.reap(g)
	return true
}

// Find returns the session with the given ID.
func (r *Registry) Find(identity, id string) (*Session, bool) {
	g, ok := r.lookup(identity)
	if !ok {
		return nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.find(id)
}

// Driver returns the identity's driver session. It reports false when the
// identity has no live sessions.
func (r *Registry) Driver(identity string) (*Session, bool) {
	g, ok := r.lookup(identity)
	if !ok {
		return nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.driver()
}

// All returns the identity's sessions, oldest first.
func (r *Registry) All(identity string) []*Session {
	g, ok := r.lookup(identity)
	if !ok {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot()
}

// Infos returns a point-in-time view of the identity's sessions, oldest first.
func (r *Registry) Infos(identity string) []Info {
	g, ok := r.lookup(identity)
	if !ok {
		return []Info{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	infos := make([]Info, 0, len(g.sessions))
	for _, s := range g.sessions {
		infos = append(infos, s.infoLocked())
	}
	return infos
}

// Count returns the number of live sessions of an identity.
func (r *Registry) Count(identity string) int {
	g, ok := r.lookup(identity)
	if !ok {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Identities returns the number of identities with live sessions.
func (r *Registry) Identities() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

// Close drops every session, closing all sinks. Register fails after Close.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	groups := make([]*group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.groups = make(map[string]*group)
	r.mu.Unlock()

	for _, g := range groups {
		g.mu.Lock()
		g.dead = true
		sessions := g.sessions
		g.sessions = nil
		for _, s := range sessions {
			s.removed = true
			s.isDriver = false
		}
		g.mu.Unlock()

		for _, s := range sessions {
			r.teardown(s)
		}
		observability.GroupsActive.Dec()
	}
}

// teardown releases the resources of a removed session.
func (r *Registry) teardown(s *Session) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.sink.Close()
	observability.SessionsActive.Dec()
}

// roleBroadcastLocked builds the announcement of driver to every member of g.
func roleBroadcastLocked(g *group, driver *Session) []delivery {
	data := encodeRole(RoleDriver, driver.id)
	out := make([]delivery, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, delivery{session: s, data: data})
	}
	return out
}

// dispatch hands each message to its session's sink. A failing sink is
// skipped; the heartbeat timeout reaps it later.
func (r *Registry) dispatch(deliveries []delivery, kind string) {
	if len(deliveries) == 0 {
		return
	}
	observability.Broadcasts.WithLabelValues(kind).Inc()

	for _, d := range deliveries {
		if err := d.session.sink.Send(d.data); err != nil {
			observability.SendFailures.Inc()
			r.logger.Debug().
				Err(err).
				Str("identity", d.session.identity).
				Str("client_id", d.session.id).
				Msg("dropped message for session")
		}
	}
}

package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var errSinkBroken = errors.New("sink broken")

// fakeSink records every message queued for a session.
type fakeSink struct {
	mu     sync.Mutex
	msgs   [][]byte
	closed bool
	broken bool
}

func (f *fakeSink) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken || f.closed {
		return errSinkBroken
	}
	f.msgs = append(f.msgs, append([]byte(nil), data...))
	return nil
}

func (f *fakeSink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSink) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = string(m)
	}
	return out
}

func (f *fakeSink) roles(t *testing.T) []RoleMessage {
	t.Helper()
	var out []RoleMessage
	for _, m := range f.messages() {
		var msg RoleMessage
		if err := json.Unmarshal([]byte(m), &msg); err != nil {
			t.Fatalf("message %q is not a role message: %v", m, err)
		}
		if msg.Role != "" {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeSink) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

func newTestRegistry(t *testing.T, opts ...func(*Config)) (*Registry, clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	config := Config{
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		Clock:            clock,
		Logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	registry := NewRegistry(config)
	t.Cleanup(registry.Close)
	return registry, clock
}

// connect registers id for identity with a fresh fake sink.
func connect(t *testing.T, r *Registry, identity, id string) (*Session, *fakeSink) {
	t.Helper()

	sink := &fakeSink{}
	s, err := r.Register(identity, id, sink)
	if err != nil {
		t.Fatalf("register %s/%s: %v", identity, id, err)
	}
	return s, sink
}

// backdate moves a session's last heartbeat into the past without touching
// the clock, so only a sweep can notice it.
func backdate(s *Session, d time.Duration) {
	s.group.mu.Lock()
	defer s.group.mu.Unlock()
	s.lastHeartbeat = s.lastHeartbeat.Add(-d)
}

func driverCount(r *Registry, identity string) int {
	n := 0
	for _, s := range r.All(identity) {
		if s.IsDriver() {
			n++
		}
	}
	return n
}

package session

import (
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
)

// Role is the part a session plays in its identity group.
type Role string

const (
	RoleDriver   Role = "driver"
	RoleFollower Role = "follower"
)

// RoleMessage announces which session currently drives the group.
// The initial frame of every stream is a RoleMessage describing the new
// session's role; promotions are announced to the whole group with
// Role == RoleDriver.
type RoleMessage struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

func encodeRole(role Role, driverID string) []byte {
	data, _ := json.Marshal(RoleMessage{Role: role, ID: driverID})
	return data
}

// Sink is the send capability of one live connection.
// Send must not block: implementations queue the message or fail.
// Close terminates the underlying connection and must be idempotent.
type Sink interface {
	Send(data []byte) error
	Close()
}

// Session is one live connection of an identity. All mutable fields are
// guarded by the owning group's mutex.
type Session struct {
	id       string
	identity string
	group    *group
	sink     Sink
	joined   uint64

	isDriver      bool
	lastHeartbeat time.Time
	removed       bool
	timer         clockwork.Timer
}

// ID returns the client-chosen session ID.
func (s *Session) ID() string {
	return s.id
}

// Identity returns the identity that owns the session.
func (s *Session) Identity() string {
	return s.identity
}

// IsDriver reports whether the session currently holds the driver role.
func (s *Session) IsDriver() bool {
	s.group.mu.Lock()
	defer s.group.mu.Unlock()
	return s.isDriver
}

// Role returns the session's current role.
func (s *Session) Role() Role {
	if s.IsDriver() {
		return RoleDriver
	}
	return RoleFollower
}

// LastHeartbeat returns the time the session last communicated.
func (s *Session) LastHeartbeat() time.Time {
	s.group.mu.Lock()
	defer s.group.mu.Unlock()
	return s.lastHeartbeat
}

// Live reports whether the session is still registered.
func (s *Session) Live() bool {
	s.group.mu.Lock()
	defer s.group.mu.Unlock()
	return !s.removed
}

// Info is a point-in-time view of a session.
type Info struct {
	ID            string    `json:"id"`
	Driver        bool      `json:"driver"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

func (s *Session) infoLocked() Info {
	return Info{ID: s.id, Driver: s.isDriver, LastHeartbeat: s.lastHeartbeat}
}

// delivery is a message bound for one session, sent after the group lock is released.
type delivery struct {
	session *Session
	data    []byte
}

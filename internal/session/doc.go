// Package session keeps the live streaming sessions of every identity and
// arbitrates which one drives the shared scroll position.
//
// The package implements:
//   - Registry: identity -> ordered group of Sessions, one lock per group
//   - Role arbitration: first session drives; a handoff moves the role; when
//     the driver leaves, the oldest remaining session takes over
//   - Control: applies heartbeats, position updates and handoffs
//   - Liveness: a per-session timer plus a sweep after every control message
//     evict sessions that have been silent for the heartbeat timeout
//
// Sessions push messages through a Sink bound at registration. Sinks are
// written to outside the group lock and a failing sink never aborts a
// broadcast.
package session

// Package stream carries messages from the session registry to browsers.
//
// The package implements:
//   - Client: a bounded per-connection send queue; it is the Sink a session
//     is registered with
//   - ServeSSE: drains a Client onto a text/event-stream response, one
//     "data:<json>" frame per message, with keepalive comments
//   - ServeSocket: drains a Client onto a WebSocket and feeds inbound text
//     frames back to the caller, with ping/pong liveness
//
// Send never blocks. A full queue drops the message; closing a Client ends
// whichever pump is serving it, which closes the connection.
package stream

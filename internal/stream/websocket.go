package stream

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Upgrader turns scroll requests into WebSocket connections, accepting only
// handshakes its origin check allows.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader returns an Upgrader that accepts handshakes for which
// checkOrigin reports true. A nil checkOrigin accepts every origin.
func NewUpgrader(checkOrigin func(r *http.Request) bool) *Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// AllowOrigins returns an origin check that accepts requests whose Origin
// header matches one of origins, ignoring case. Requests without an Origin
// header do not come from a browser and are accepted.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}

// CheckOrigin reports whether r's origin may open a socket.
func (u *Upgrader) CheckOrigin(r *http.Request) bool {
	return u.upgrader.CheckOrigin(r)
}

// IsUpgrade reports whether r asks for a WebSocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// Upgrade upgrades an HTTP request to a WebSocket connection. header is added
// to the handshake response. On failure the upgrader has already replied to
// the client.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request, header http.Header) (*websocket.Conn, error) {
	return u.upgrader.Upgrade(w, r, header)
}

// ServeSocket pumps client's queue to conn and hands every inbound text
// frame to onMessage. onPong, if set, runs whenever the peer answers a ping.
// It blocks until the peer disconnects or the client is closed, and returns
// once both pumps have stopped and the connection is closed.
func ServeSocket(conn *websocket.Conn, client *Client, onMessage func([]byte), onPong func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, client)
	}()

	readPump(conn, onMessage, onPong)
	client.Close()
	<-done
}

// readPump reads frames until the connection fails or is closed.
func readPump(conn *websocket.Conn, onMessage func([]byte), onPong func()) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if onPong != nil {
			onPong()
		}
		return nil
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage || onMessage == nil {
			continue
		}
		onMessage(message)
	}
}

// writePump writes queued messages, one per frame, and pings the peer.
func writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the client
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

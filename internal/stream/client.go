package stream

import (
	"errors"
	"sync"
)

// DefaultSendBuffer is the per-connection queue length used when none is configured.
const DefaultSendBuffer = 64

var (
	// ErrClientClosed is returned when sending to a closed client.
	ErrClientClosed = errors.New("stream: client closed")

	// ErrBufferFull is returned when a client's queue is full; the message is dropped.
	ErrBufferFull = errors.New("stream: send buffer full")
)

// Client is the outbound queue of one streaming connection.
type Client struct {
	id     string
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new Client with a queue of the given length.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		id:   id,
		send: make(chan []byte, buffer),
	}
}

// ID returns the client ID the connection registered with.
func (c *Client) ID() string {
	return c.id
}

// Send queues a message for the connection without blocking.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close closes the queue. The pump serving the client drains what is left,
// then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SendChan returns the queue read by the connection's pump.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/jonboulle/clockwork"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("stream: response writer does not support flushing")

const keepAliveFrame = ": keepalive\n\n"

// PrepareSSE writes the event-stream response headers and flushes them so the
// browser sees the stream open before the first event.
func PrepareSSE(w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return nil
}

// ServeSSE writes every message queued on client as an SSE data frame until
// ctx is done, the client is closed, or a write fails. A comment frame is
// written every keepAlive so idle proxies keep the connection open; zero
// disables it.
func ServeSSE(ctx context.Context, w http.ResponseWriter, client *Client, keepAlive time.Duration, clock clockwork.Clock) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var tick <-chan time.Time
	if keepAlive > 0 {
		ticker := clock.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case message, ok := <-client.SendChan():
			if !ok {
				// Closed by the registry: eviction or shutdown.
				return nil
			}
			if err := sse.Encode(w, sse.Event{Data: string(message)}); err != nil {
				return err
			}

			// Write whatever else is queued before flushing
			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued, ok := <-client.SendChan()
				if !ok {
					flusher.Flush()
					return nil
				}
				if err := sse.Encode(w, sse.Event{Data: string(queued)}); err != nil {
					return err
				}
			}
			flusher.Flush()

		case <-tick:
			if _, err := io.WriteString(w, keepAliveFrame); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

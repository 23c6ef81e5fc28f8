package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teleprompter/backend/internal/model"
	"github.com/teleprompter/backend/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	tokenAda = "token-ada"
	tokenBob = "token-bob"
)

// stubVerifier maps tokens straight to users.
type stubVerifier map[string]*model.User

func (s stubVerifier) Verify(_ context.Context, token string) (*model.User, error) {
	if user, ok := s[token]; ok {
		return user, nil
	}
	return nil, model.ErrUnauthorized
}

var testUsers = stubVerifier{
	tokenAda: {ID: "user-1", Email: "ada@example.com", FirstName: "Ada", CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	tokenBob: {ID: "user-2", Email: "bob@example.com"},
}

type testServer struct {
	registry *session.Registry
	clock    clockwork.FakeClock
	router   *gin.Engine
	server   *httptest.Server
}

type serverOptions struct {
	registry session.Config
	scroll   ScrollConfig
}

func newTestServer(t *testing.T, opts ...func(*serverOptions)) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	options := serverOptions{
		registry: session.Config{
			HeartbeatTimeout: session.DefaultHeartbeatTimeout,
			Clock:            clock,
			Logger:           zerolog.Nop(),
		},
		scroll: ScrollConfig{
			SendBuffer: 16,
			Clock:      clock,
			Logger:     zerolog.Nop(),
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	registry := session.NewRegistry(options.registry)

	router := gin.New()
	api := router.Group("/api/v1", RequireIdentity(testUsers, zerolog.Nop()))
	NewScrollHandler(registry, options.scroll).RegisterRoutes(api)
	NewUserHandler().RegisterRoutes(api)

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		// Ends open streams so the server can shut down.
		registry.Close()
		server.Close()
	})

	return &testServer{
		registry: registry,
		clock:    clock,
		router:   router,
		server:   server,
	}
}

// do runs a non-streaming request against the router.
func (ts *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// eventStream is an open GET /scroll response. Data frames are delivered on
// frames; the channel closes when the server ends the stream.
type eventStream struct {
	resp   *http.Response
	frames chan string
}

func (ts *testServer) openStream(t *testing.T, token, query string) *eventStream {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.server.URL+"/api/v1/scroll"+query, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)

	es := &eventStream{resp: resp, frames: make(chan string, 32)}
	go func() {
		defer close(es.frames)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if data, ok := strings.CutPrefix(scanner.Text(), "data:"); ok {
				es.frames <- data
			}
		}
	}()
	return es
}

func (es *eventStream) next(t *testing.T) string {
	t.Helper()

	select {
	case frame, ok := <-es.frames:
		if !ok {
			t.Fatal("stream ended while waiting for a frame")
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
		return ""
	}
}

func (es *eventStream) nextRole(t *testing.T) session.RoleMessage {
	t.Helper()

	var msg session.RoleMessage
	require.NoError(t, json.Unmarshal([]byte(es.next(t)), &msg))
	return msg
}

// waitEnd waits for the server to end the stream, discarding frames.
func (es *eventStream) waitEnd(t *testing.T) {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-es.frames:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
}

func decodeError(t *testing.T, body []byte) ErrorDetail {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error
}

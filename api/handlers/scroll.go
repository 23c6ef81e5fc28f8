package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/teleprompter/backend/internal/model"
	"github.com/teleprompter/backend/internal/session"
	"github.com/teleprompter/backend/internal/stream"
)

// maxControlBody caps the size of a control message body.
const maxControlBody = 16 << 10

// ClientIDHeader carries the client ID the server generated for a stream
// opened without one.
const ClientIDHeader = "X-Client-ID"

// ScrollConfig holds the streaming settings of a ScrollHandler.
type ScrollConfig struct {
	KeepAlive  time.Duration
	SendBuffer int
	Limiter    *OpenLimiter
	Clock      clockwork.Clock
	Logger     zerolog.Logger

	// CheckOrigin decides which browser origins may open a socket. Nil
	// accepts all.
	CheckOrigin func(r *http.Request) bool
}

// ScrollHandler serves the live scroll endpoints: the event streams each
// browser keeps open and the control messages they post.
type ScrollHandler struct {
	registry   *session.Registry
	keepAlive  time.Duration
	sendBuffer int
	limiter    *OpenLimiter
	upgrader   *stream.Upgrader
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewScrollHandler creates a new ScrollHandler.
func NewScrollHandler(registry *session.Registry, config ScrollConfig) *ScrollHandler {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = stream.DefaultSendBuffer
	}
	return &ScrollHandler{
		registry:   registry,
		keepAlive:  config.KeepAlive,
		sendBuffer: config.SendBuffer,
		limiter:    config.Limiter,
		upgrader:   stream.NewUpgrader(config.CheckOrigin),
		clock:      config.Clock,
		logger:     config.Logger,
	}
}

// RegisterRoutes registers the scroll routes on a router group that is
// already behind RequireIdentity.
func (h *ScrollHandler) RegisterRoutes(rg *gin.RouterGroup) {
	scroll := rg.Group("/scroll")
	{
		scroll.GET("", h.Open)
		scroll.POST("", h.Control)
		scroll.GET("/ws", h.OpenSocket)
		scroll.GET("/sessions", h.Sessions)
	}
}

// register admits a new stream for the caller. On failure the error response
// has been written.
func (h *ScrollHandler) register(c *gin.Context) (*session.Session, *stream.Client, bool) {
	user := userFrom(c)

	if !h.limiter.Allow(user.ID) {
		sendError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many streams opened, slow down")
		return nil, nil, false
	}

	clientID := c.Query("clientID")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := stream.NewClient(clientID, h.sendBuffer)
	sess, err := h.registry.Register(user.ID, clientID, client)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateSession) {
			h.logger.Warn().Str("identity", user.ID).Str("client_id", clientID).Msg("client already exists")
		}
		sendDomainError(c, err)
		return nil, nil, false
	}

	return sess, client, true
}

// Open handles GET /scroll - opens the caller's event stream. The stream
// starts with a role frame and then carries every message broadcast to the
// caller's group until the client disconnects or the session is evicted.
func (h *ScrollHandler) Open(c *gin.Context) {
	sess, client, ok := h.register(c)
	if !ok {
		return
	}
	defer h.registry.Release(sess)

	c.Header(ClientIDHeader, sess.ID())
	if err := stream.PrepareSSE(c.Writer); err != nil {
		h.logger.Error().Err(err).Str("client_id", sess.ID()).Msg("cannot stream to client")
		return
	}

	if err := stream.ServeSSE(c.Request.Context(), c.Writer, client, h.keepAlive, h.clock); err != nil {
		h.logger.Debug().Err(err).Str("client_id", sess.ID()).Msg("stream write failed")
	}
}

// OpenSocket handles GET /scroll/ws - the WebSocket form of Open. Text frames
// from the client are control messages sent on behalf of the connection's
// own session, and pongs count as heartbeats.
func (h *ScrollHandler) OpenSocket(c *gin.Context) {
	if !stream.IsUpgrade(c.Request) {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "websocket upgrade required")
		return
	}
	if !h.upgrader.CheckOrigin(c.Request) {
		sendError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
		return
	}

	sess, client, ok := h.register(c)
	if !ok {
		return
	}
	defer h.registry.Release(sess)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, http.Header{ClientIDHeader: []string{sess.ID()}})
	if err != nil {
		h.logger.Warn().Err(err).Str("client_id", sess.ID()).Msg("websocket upgrade failed")
		return
	}

	identity := sess.Identity()
	onMessage := func(message []byte) {
		req, err := model.ParseBoundControlRequest(message, sess.ID())
		if err == nil {
			_, err = h.registry.Apply(identity, req)
		}
		if err != nil {
			h.replyError(client, err)
		}
	}
	onPong := func() {
		h.registry.Touch(sess)
	}

	stream.ServeSocket(conn, client, onMessage, onPong)
}

// replyError queues an error frame for a socket client.
func (h *ScrollHandler) replyError(client *stream.Client, err error) {
	_, code := classify(err)
	frame, _ := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: err.Error()}})
	if sendErr := client.Send(frame); sendErr != nil {
		h.logger.Debug().Err(sendErr).Str("client_id", client.ID()).Msg("failed to queue error frame")
	}
}

// Control handles POST /scroll - applies a control message from one of the
// caller's sessions.
func (h *ScrollHandler) Control(c *gin.Context) {
	user := userFrom(c)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxControlBody))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	result, err := h.registry.Control(user.ID, body)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	if len(result.Evicted) > 0 {
		h.logger.Debug().Str("identity", user.ID).Strs("evicted", result.Evicted).Msg("swept stale sessions")
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// SessionResponse describes one live session in API responses.
type SessionResponse struct {
	ID            string `json:"id"`
	Driver        bool   `json:"driver"`
	LastHeartbeat string `json:"lastHeartbeat"`
}

// Sessions handles GET /scroll/sessions - lists the caller's live sessions,
// oldest first.
func (h *ScrollHandler) Sessions(c *gin.Context) {
	user := userFrom(c)

	infos := h.registry.Infos(user.ID)
	response := make([]SessionResponse, len(infos))
	for i, info := range infos {
		response[i] = SessionResponse{
			ID:            info.ID,
			Driver:        info.Driver,
			LastHeartbeat: info.LastHeartbeat.UTC().Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, response)
}

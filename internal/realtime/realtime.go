// Package realtime exposes source resolution over WebSocket so clients can
// watch the server walk live instead of polling.
package realtime

import (
	"context"
	goerrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/models"
	"github.com/aniflux/aniflux/internal/resolver"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 16

	// A session resolution keeps running after a disconnect so the cache
	// still learns the outcome; this bounds that background walk.
	resolveTimeout = 45 * time.Second
)

// Resolver is the slice of the resolution engine a session needs.
type Resolver interface {
	Resolve(ctx context.Context, ref models.EpisodeReference, category models.Category, opts resolver.Options) (*models.ResolvedSources, error)
}

// ClientMessage is one inbound frame.
type ClientMessage struct {
	Type      string `json:"type"`
	EpisodeID string `json:"episodeId,omitempty"`
	Category  string `json:"category,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
}

// ServerMessage is one outbound frame. Type is one of status, retry,
// sources, error.
type ServerMessage struct {
	Type         string                  `json:"type"`
	Message      string                  `json:"message,omitempty"`
	EpisodeID    string                  `json:"episodeId,omitempty"`
	Server       string                  `json:"server,omitempty"`
	ServerIndex  int                     `json:"serverIndex,omitempty"`
	TotalServers int                     `json:"totalServers,omitempty"`
	CacheEnabled bool                    `json:"cacheEnabled,omitempty"`
	Data         *models.ResolvedSources `json:"data,omitempty"`
	Code         string                  `json:"code,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests into resolution sessions.
type Handler struct {
	engine       Resolver
	cacheEnabled bool
	logger       *logrus.Logger
}

// NewHandler creates a realtime Handler over the resolution engine.
func NewHandler(engine Resolver, cacheEnabled bool, logger *logrus.Logger) *Handler {
	return &Handler{
		engine:       engine,
		cacheEnabled: cacheEnabled,
		logger:       logger,
	}
}

// ServeWS upgrades the request and runs the session until the client leaves.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("[Realtime] websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &session{
		handler: h,
		conn:    conn,
		send:    make(chan ServerMessage, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}

	go session.writePump()
	session.trySend(ServerMessage{
		Type:         "status",
		Message:      "connected",
		CacheEnabled: h.cacheEnabled,
	})
	session.readPump()
}

type session struct {
	handler *Handler
	conn    *websocket.Conn
	send    chan ServerMessage
	ctx     context.Context
	cancel  context.CancelFunc
}

// trySend queues a frame without blocking. Frames for a gone or slow client
// are dropped; resolution state lives in the cache, not the socket.
func (s *session) trySend(msg ServerMessage) {
	select {
	case <-s.ctx.Done():
	case s.send <- msg:
	default:
		s.handler.logger.Debug("[Realtime] send buffer full, dropping frame")
	}
}

func (s *session) readPump() {
	defer func() {
		s.cancel()
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.handler.logger.WithError(err).Debug("[Realtime] read failed")
			}
			return
		}

		switch msg.Type {
		case "get_sources":
			go s.resolve(msg)
		default:
			s.trySend(ServerMessage{
				Type:    "error",
				Code:    errors.ErrorTypeInvalidRequest,
				Message: "unknown message type: " + msg.Type,
			})
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// resolve runs one resolution and streams its progress back. The walk uses
// its own context so a mid-flight disconnect does not waste the attempt.
func (s *session) resolve(msg ClientMessage) {
	ref, err := models.ParseEpisodeID(msg.EpisodeID)
	if err != nil {
		s.sendError(err)
		return
	}
	category, err := models.ParseCategory(msg.Category)
	if err != nil {
		s.sendError(err)
		return
	}

	s.trySend(ServerMessage{
		Type:      "status",
		Message:   "resolving",
		EpisodeID: ref.EpisodeID(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	result, err := s.handler.engine.Resolve(ctx, ref, category, resolver.Options{
		Progress: func(ev resolver.ProgressEvent) {
			s.trySend(ServerMessage{
				Type:         "retry",
				Server:       ev.Server,
				ServerIndex:  ev.ServerIndex,
				TotalServers: ev.TotalServers,
			})
		},
	})
	if err != nil {
		s.sendError(err)
		return
	}

	s.trySend(ServerMessage{
		Type:      "sources",
		EpisodeID: ref.EpisodeID(),
		Server:    result.UsedServer,
		Data:      result,
	})
}

func (s *session) sendError(err error) {
	code := "INTERNAL"
	var re *errors.ResolveError
	if goerrors.As(err, &re) {
		code = re.Type
	}
	s.trySend(ServerMessage{
		Type:    "error",
		Code:    code,
		Message: err.Error(),
	})
}

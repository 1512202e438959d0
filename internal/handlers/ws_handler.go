package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/anonto42/nano-midea/socialgraph/internal/realtime"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
)

// WSHandler upgrades connections onto the realtime hub.
type WSHandler struct {
	hub             *realtime.Hub
	relay           realtime.Publisher
	typingPerSecond float64
	upgrader        websocket.Upgrader
	log             *zap.Logger
}

// NewWSHandler serves sockets on hub. relay carries typing indicators and is
// the configured fan-out backend, so typing reaches users on other instances.
func NewWSHandler(hub *realtime.Hub, relay realtime.Publisher, typingPerSecond float64) *WSHandler {
	return &WSHandler{
		hub:             hub,
		relay:           relay,
		typingPerSecond: typingPerSecond,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// sockets authenticate with a token, never with cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logger.Named("ws"),
	}
}

func (h *WSHandler) RegisterWSRoutes(g *echo.Group) {
	g.GET("/ws", h.Serve)
}

// Serve blocks for the lifetime of the connection.
func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	opts := realtime.Options{
		Relay:           h.relay,
		TypingPerSecond: h.typingPerSecond,
	}
	if viewer := viewerFrom(c); viewer != nil {
		opts.AuthUserID = viewer.Hex()
	}
	h.hub.Serve(conn, opts)
	return nil
}

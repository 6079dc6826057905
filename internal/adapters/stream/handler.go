package stream

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/LdDl/mot-fusion/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests and attaches the connection to the hub.
type Handler struct {
	hub *Hub
}

// NewHandler creates a websocket handler bound to hub
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		h.hub.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	client := newClient(h.hub, conn, r.RemoteAddr)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

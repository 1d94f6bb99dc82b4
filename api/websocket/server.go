package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zaki9501/pikimon-mcp-server/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced by the router middleware
		return true
	},
}

// Server upgrades HTTP requests and bridges each connection to a fan-out
// hub subscription.
type Server struct {
	hub    *hub.Hub
	logger *zap.Logger
}

// NewServer creates a new WebSocket server
func NewServer(h *hub.Hub, logger *zap.Logger) *Server {
	return &Server{
		hub:    h,
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(s.hub, conn, s.logger)

	go client.writePump()
	go client.readPump()

	s.logger.Info("new websocket connection",
		zap.String("id", client.sub.ID),
		zap.String("remote_addr", r.RemoteAddr))
}

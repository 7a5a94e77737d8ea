package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/transport"
)

// Maximum message size allowed from a host. Command frames are a few
// bytes; anything near this is not a kineintra client.
const maxMessageSize = 8192

// handleWebSocket upgrades the request and serves a simulated device over
// binary messages until either side closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.log.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s.runSession("ws", r.RemoteAddr, transport.NewWebSocketChannel(conn))
}

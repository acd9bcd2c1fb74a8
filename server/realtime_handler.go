package server

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleRealtime upgrades the request and hands the socket to the bridge. The session lasts
// until the client disconnects or the server shuts down.
func (s *Server) handleRealtime() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}

		upgrader := upgrader
		upgrader.CheckOrigin = s.checkOrigin
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade for %s failed: %v", userID, err)
			return
		}
		s.liveSessions.Add(1)
		defer s.liveSessions.Done()
		ctx, cancel := s.sessionContext(c.Request.Context())
		defer cancel()
		s.Bridge.Serve(ctx, userID, ws)
	}
}

// checkOrigin accepts the configured origins. With none configured every origin is allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.Config.Origins()
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == origin {
			return true
		}
	}
	return false
}

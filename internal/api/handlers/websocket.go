package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/handcricket/backend/internal/ws"
)

// HandleGameWebSocket handles real-time game communication
func HandleGameWebSocket(server *ws.Server) gin.HandlerFunc {
	return server.Handle
}

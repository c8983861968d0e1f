package api

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/handcricket/backend/internal/api/handlers"
	"github.com/handcricket/backend/internal/config"
	"github.com/handcricket/backend/internal/middleware"
	"github.com/handcricket/backend/internal/ws"
)

// Deps are the collaborators the HTTP surface reads from. Stats may be nil
// when no database is configured.
type Deps struct {
	Matchmaking handlers.MatchmakingReader
	Stats       handlers.StatsReader
	WebSocket   *ws.Server
	Health      map[string]handlers.Pinger
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config, deps Deps) {
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] no-cache headers enabled for all routes")
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(deps.Health))
		v1.GET("/config", handlers.GetConfig(cfg))
		v1.GET("/matchmaking/status", handlers.OptionalAuth(cfg), handlers.GetMatchmakingStatus(deps.Matchmaking))
		v1.GET("/ws", handlers.HandleGameWebSocket(deps.WebSocket))

		if deps.Stats != nil {
			me := v1.Group("/me", handlers.AuthMiddleware(cfg))
			me.GET("/stats", handlers.GetMyStats(deps.Stats))
		}
	}
}

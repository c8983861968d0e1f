package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/handcricket/backend/internal/auth"
	"github.com/handcricket/backend/internal/config"
	"github.com/handcricket/backend/internal/cricket"
)

const participantKey = "participant"

// AuthMiddleware validates the bearer JWT and sets the participant in context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		p, err := auth.Verify(cfg.JWTSecret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(participantKey, p)
		c.Next()
	}
}

// OptionalAuth sets the participant when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := auth.TokenFromRequest(c.Request); token != "" {
			if p, err := auth.Verify(cfg.JWTSecret, token); err == nil {
				c.Set(participantKey, p)
			}
		}
		c.Next()
	}
}

func participantFrom(c *gin.Context) (cricket.Participant, bool) {
	v, ok := c.Get(participantKey)
	if !ok {
		return cricket.Participant{}, false
	}
	p, ok := v.(cricket.Participant)
	return p, ok
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/handcricket/backend/internal/config"
)

// GetConfig returns the match settings the frontend needs
func GetConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"max_balls":            cfg.MaxBalls,
			"countdown_seconds":    cfg.CountdownSeconds,
			"idle_warning_seconds": cfg.IdleWarningSeconds,
			"idle_forfeit_seconds": cfg.IdleForfeitSeconds,
			"valid_moves":          []int{1, 2, 3, 4, 5, 6},
		})
	}
}

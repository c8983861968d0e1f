package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/handcricket/backend/internal/models"
	"github.com/handcricket/backend/internal/results"
)

type StatsReader interface {
	Stats(ctx context.Context, participantID string) (models.PlayerStats, error)
}

// GetMyStats returns the caller's aggregated results. A participant with no
// finished sessions gets zeroed totals.
func GetMyStats(sr StatsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := participantFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		st, err := sr.Stats(c.Request.Context(), p.ID)
		if errors.Is(err, results.ErrNoStats) {
			st = models.PlayerStats{ParticipantID: p.ID, DisplayName: p.Name}
		} else if err != nil {
			log.Printf("[RESULTS] stats for %s failed: %v", p.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

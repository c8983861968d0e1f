package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/handcricket/backend/internal/store"
)

// MatchmakingReader is the read side of the coordinator used over HTTP.
type MatchmakingReader interface {
	QueueLength(ctx context.Context) (int64, error)
	QueuePosition(ctx context.Context, participantID string) (int64, error)
	Status(ctx context.Context, participantID string) (store.PlayerStatus, error)
}

// GetMatchmakingStatus reports the queue length, and for an authenticated
// caller their own status and queue position.
func GetMatchmakingStatus(mm MatchmakingReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		length, err := mm.QueueLength(ctx)
		if err != nil {
			log.Printf("[MATCH] queue length failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "matchmaking unavailable"})
			return
		}

		resp := gin.H{"queue_length": length}
		if p, ok := participantFrom(c); ok {
			st, err := mm.Status(ctx, p.ID)
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "matchmaking unavailable"})
				return
			}
			resp["status"] = st.Kind
			if st.SessionID != "" {
				resp["session_id"] = st.SessionID
			}
			if st.Kind == store.StatusQueued {
				pos, err := mm.QueuePosition(ctx, p.ID)
				if err == nil {
					resp["position"] = pos
				} else if !errors.Is(err, store.ErrNotQueued) {
					log.Printf("[MATCH] queue position for %s failed: %v", p.ID, err)
				}
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

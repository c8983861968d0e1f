package ws

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/handcricket/backend/internal/auth"
	"github.com/handcricket/backend/internal/cricket"
	"github.com/handcricket/backend/internal/game"
)

// Coordinator is the slice of game.Coordinator the transport drives.
type Coordinator interface {
	Connect(ctx context.Context, p cricket.Participant, handle string) error
	FindGame(ctx context.Context, participantID string)
	CancelMatchmaking(ctx context.Context, participantID string)
	PlayerMove(ctx context.Context, participantID string, req game.PlayerMoveRequest)
	GetState(ctx context.Context, participantID string, req game.GetStateRequest)
	Touch(ctx context.Context, participantID, handle string)
	Disconnect(ctx context.Context, participantID, handle string)
}

// Server upgrades authenticated requests and attaches them to the hub.
type Server struct {
	hub      *Hub
	coord    Coordinator
	secret   string
	upgrader websocket.Upgrader
	pumps    sync.WaitGroup

	pingPeriod time.Duration
}

// NewServer accepts browser origins listed in allowedOrigins; "*" accepts
// any. Requests without an Origin header are not browsers and pass.
func NewServer(hub *Hub, coord Coordinator, jwtSecret string, allowedOrigins []string) *Server {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return &Server{
		hub:        hub,
		coord:      coord,
		secret:     jwtSecret,
		pingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Handle serves GET /api/v1/ws.
func (s *Server) Handle(c *gin.Context) {
	p, err := auth.Verify(s.secret, auth.TokenFromRequest(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	s.pumps.Add(1)
	client := newClient(conn, p, s.hub.nextHandle(), s.pingPeriod)
	old := s.hub.register(client)

	// Bind before retiring the old socket so its drop is seen as stale.
	err = s.coord.Connect(context.Background(), p, client.handle)
	if old != nil {
		log.Printf("[WS] Player %s reconnecting - closing old connection %s", p.ID, old.handle)
		old.close()
	}
	if err != nil {
		log.Printf("[WS] connect failed for player %s: %v", p.ID, err)
		code, retry := game.ErrorCode(err)
		client.enqueue(game.Envelope{Type: game.EventGameError, Data: game.ErrorData{Code: code, Message: "Could not register connection", Retry: retry}})
		s.hub.unregister(client)
		// Connect may have bound this handle before failing.
		s.coord.Disconnect(context.Background(), p.ID, client.handle)
		s.pumps.Done()
		go client.writePump()
		return
	}

	log.Printf("[WS] Player %s connected (%s)", p.ID, client.handle)
	go client.writePump()
	go func() {
		defer s.pumps.Done()
		client.readPump(s.hub, s.coord)
	}()
}

// Shutdown closes every connection and waits until each drop has been
// reported to the coordinator, or ctx ends. Call it after the HTTP server
// has stopped accepting upgrades.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("[WS] all connections drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/handcricket/backend/internal/cricket"
	"github.com/handcricket/backend/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
	sendBuffer     = 256
)

// Client is one participant's websocket connection.
type Client struct {
	conn        *websocket.Conn
	participant cricket.Participant
	handle      string
	send        chan []byte
	pingEvery   time.Duration

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, p cricket.Participant, handle string, pingEvery time.Duration) *Client {
	return &Client{
		conn:        conn,
		participant: p,
		handle:      handle,
		send:        make(chan []byte, sendBuffer),
		pingEvery:   pingEvery,
	}
}

// close ends the write side; writePump sends a close frame and drops the socket.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// push queues a frame without blocking. Frames for a closed or saturated
// client are dropped.
func (c *Client) push(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Printf("[WS] send buffer full for player %s, dropping message", c.participant.ID)
		return false
	}
}

func (c *Client) enqueue(env game.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[WS] Error marshaling %s: %v", env.Type, err)
		return
	}
	c.push(data)
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Replaced or shutting down. Best-effort close frame.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for player %s: %v", c.participant.ID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] ping error for player %s: %v", c.participant.ID, err)
				return
			}
		}
	}
}

// readPump feeds inbound frames to the coordinator until the socket drops,
// then reports the drop with this connection's handle. Every pong refreshes
// the connection's binding so it outlives the store's status expiry.
func (c *Client) readPump(hub *Hub, coord Coordinator) {
	defer func() {
		hub.unregister(c)
		c.conn.Close()
		coord.Disconnect(context.Background(), c.participant.ID, c.handle)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		coord.Touch(context.Background(), c.participant.ID, c.handle)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] unexpected close for player %s: %v", c.participant.ID, err)
			}
			return
		}
		c.handleMessage(coord, message)
	}
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) handleMessage(coord Coordinator, raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.enqueueError(game.EventGameError, "invalid_payload", "Malformed message")
		return
	}

	ctx := context.Background()
	id := c.participant.ID
	switch msg.Type {
	case game.EventFindGame:
		coord.FindGame(ctx, id)

	case game.EventCancelMatchmaking:
		coord.CancelMatchmaking(ctx, id)

	case game.EventPlayerMove:
		var req game.PlayerMoveRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.enqueueError(game.EventMoveError, "invalid_payload", "Invalid move data")
			return
		}
		coord.PlayerMove(ctx, id, req)

	case game.EventGetState:
		var req game.GetStateRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				c.enqueueError(game.EventGameError, "invalid_payload", "Invalid state request")
				return
			}
		}
		coord.GetState(ctx, id, req)

	default:
		c.enqueueError(game.EventGameError, "unknown_type", "Unknown message type")
	}
}

// enqueueError replies on this connection only.
func (c *Client) enqueueError(eventType, code, message string) {
	c.enqueue(game.Envelope{Type: eventType, Data: game.ErrorData{Code: code, Message: message}})
}

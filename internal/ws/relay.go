package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/handcricket/backend/internal/game"
)

// EventsChannel carries envelopes between processes sharing a store.
const EventsChannel = "hc:events"

type relayFrame struct {
	To       []string        `json:"to"`
	Envelope json.RawMessage `json:"envelope"`
}

// RedisNotifier publishes envelopes so that whichever process holds a
// participant's socket delivers them. Publishes for one session happen
// under the coordinator's session lock, which keeps them in order.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	timeout time.Duration
}

func NewRedisNotifier(rdb *redis.Client, timeout time.Duration) *RedisNotifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisNotifier{rdb: rdb, channel: EventsChannel, timeout: timeout}
}

func (n *RedisNotifier) SendTo(participantID string, env game.Envelope) {
	n.Broadcast([]string{participantID}, env)
}

func (n *RedisNotifier) Broadcast(participantIDs []string, env game.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		log.Printf("[WS] Error marshaling %s: %v", env.Type, err)
		return
	}
	payload, err := json.Marshal(relayFrame{To: participantIDs, Envelope: body})
	if err != nil {
		log.Printf("[WS] Error marshaling relay frame: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		log.Printf("[WS] publish %s to %v failed: %v", env.Type, participantIDs, err)
	}
}

// Relay feeds frames published on the events channel to the local hub.
type Relay struct {
	hub    *Hub
	pubsub *redis.PubSub
}

// SubscribeRelay returns once the subscription is confirmed, so nothing
// published afterwards is missed.
func SubscribeRelay(ctx context.Context, rdb *redis.Client, hub *Hub) (*Relay, error) {
	pubsub := rdb.Subscribe(ctx, EventsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}
	log.Printf("[WS] %s subscriber started", EventsChannel)
	return &Relay{hub: hub, pubsub: pubsub}, nil
}

// Run delivers frames until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	defer r.pubsub.Close()
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[WS] %s subscriber stopping", EventsChannel)
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("%s subscription closed", EventsChannel)
			}
			var frame relayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				log.Printf("[WS] invalid event payload: %v", err)
				continue
			}
			r.hub.deliver(frame.To, frame.Envelope)
		}
	}
}

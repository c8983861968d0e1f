package matchmaking

import (
	"context"
	"errors"
	"log"

	"github.com/handcricket/backend/internal/store"
)

// Pair is two participants popped together from the head of the queue.
type Pair struct {
	First  store.QueueEntry
	Second store.QueueEntry
}

// IDs returns the participant ids in queue order.
func (p *Pair) IDs() []string {
	return []string{p.First.ParticipantID, p.Second.ParticipantID}
}

// Queue is the FIFO of participants waiting for an opponent. All state lives
// in the store so that every server process shares one queue.
type Queue struct {
	store store.Store
}

func NewQueue(st store.Store) *Queue {
	return &Queue{store: st}
}

// Enroll adds the participant to the back of the queue.
func (q *Queue) Enroll(ctx context.Context, participantID string) (store.QueueEntry, error) {
	e, err := q.store.Enqueue(ctx, participantID)
	if err != nil {
		return store.QueueEntry{}, err
	}
	log.Printf("[MATCH] %s enrolled (seq=%d)", participantID, e.Seq)
	return e, nil
}

// Cancel removes a waiting participant and marks it idle.
func (q *Queue) Cancel(ctx context.Context, participantID string) error {
	if err := q.store.Dequeue(ctx, participantID); err != nil {
		return err
	}
	log.Printf("[MATCH] %s left the queue", participantID)
	return nil
}

// Remove is Cancel for dropped connections: not being queued is not an error.
func (q *Queue) Remove(ctx context.Context, participantID string) error {
	err := q.store.Dequeue(ctx, participantID)
	if err == nil {
		log.Printf("[MATCH] %s removed from the queue after disconnect", participantID)
		return nil
	}
	if errors.Is(err, store.ErrNotQueued) {
		return nil
	}
	return err
}

// TryPair pops the two oldest waiting participants, or returns nil when fewer
// than two are waiting.
func (q *Queue) TryPair(ctx context.Context) (*Pair, error) {
	entries, err := q.store.PopPair(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) < 2 {
		return nil, nil
	}
	p := &Pair{First: entries[0], Second: entries[1]}
	log.Printf("[MATCH] Paired %s (seq=%d) with %s (seq=%d)",
		p.First.ParticipantID, p.First.Seq, p.Second.ParticipantID, p.Second.Seq)
	return p, nil
}

// Requeue puts a popped participant back after its opponent vanished.
func (q *Queue) Requeue(ctx context.Context, participantID string) (store.QueueEntry, error) {
	e, err := q.store.Requeue(ctx, participantID)
	if err != nil {
		return store.QueueEntry{}, err
	}
	log.Printf("[MATCH] %s requeued (seq=%d)", participantID, e.Seq)
	return e, nil
}

// Length is the number of entries currently queued.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.store.QueueLength(ctx)
}

// Position is the participant's 1-based place in the queue.
func (q *Queue) Position(ctx context.Context, participantID string) (int64, error) {
	return q.store.QueuePosition(ctx, participantID)
}

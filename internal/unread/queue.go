package unread

import "github.com/google/uuid"

// Queue is the producer side of Listen. Invalidate drops the cached count
// before returning, so the caller reads its own write, and leaves pushing the
// new count to subscribers to the Listen loop.
type Queue struct {
	counter *Counter
	ch      chan Invalidation
}

func NewQueue(c *Counter, size int) *Queue {
	return &Queue{counter: c, ch: make(chan Invalidation, size)}
}

// C is the channel to hand to Counter.Listen.
func (q *Queue) C() <-chan Invalidation {
	return q.ch
}

// Invalidate never blocks. When the queue is full the push is skipped and the
// watcher's poll delivers the count instead.
func (q *Queue) Invalidate(actorID uuid.UUID) {
	q.counter.invalidate(actorID, "explicit")

	select {
	case q.ch <- Invalidation{ActorID: actorID, Trigger: "explicit", applied: true}:
	default:
		q.counter.logger.Warn("unread: invalidation queue full", "actor", actorID)
	}
}

package unread

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/realtime"
)

// Subscription receives the actor's count every time it is recomputed after
// an invalidation. Only the latest value is kept for a slow reader.
type Subscription struct {
	C <-chan int

	c       chan int
	counter *Counter
	actorID uuid.UUID
	once    sync.Once
	closed  chan struct{}
}

// Close detaches the subscription. No count is delivered after Close returns.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.counter.unsubscribe(s)
	})
}

// watcher owns the invalidation sources for one actor while it has at least
// one subscriber.
type watcher struct {
	subs   map[*Subscription]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe registers for count pushes. The first subscriber for an actor
// starts its realtime subscription, poll timer and broadcast listener; the
// last Close stops them.
func (c *Counter) Subscribe(ctx context.Context, actorID uuid.UUID) *Subscription {
	ch := make(chan int, 1)
	s := &Subscription{C: ch, c: ch, counter: c, actorID: actorID, closed: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.detach()
		return s
	}
	w, ok := c.watchers[actorID]
	if !ok {
		wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		w = &watcher{
			subs:   make(map[*Subscription]struct{}),
			cancel: cancel,
			done:   make(chan struct{}),
		}
		c.watchers[actorID] = w
		go c.watch(wctx, actorID, w)
	}
	w.subs[s] = struct{}{}
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()
	return s
}

// Close stops every watcher and closes all subscriptions.
func (c *Counter) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	watchers := c.watchers
	c.watchers = make(map[uuid.UUID]*watcher)
	for _, w := range watchers {
		for s := range w.subs {
			s.detach()
		}
		w.cancel()
	}
	c.mu.Unlock()

	for _, w := range watchers {
		<-w.done
	}
}

func (c *Counter) unsubscribe(s *Subscription) {
	c.mu.Lock()
	w, ok := c.watchers[s.actorID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if _, ok := w.subs[s]; !ok {
		c.mu.Unlock()
		return
	}
	delete(w.subs, s)
	s.detach()
	if len(w.subs) == 0 {
		delete(c.watchers, s.actorID)
		w.cancel()
	}
	c.mu.Unlock()
}

// detach closes the delivery channel. Callers hold c.mu or own s exclusively.
func (s *Subscription) detach() {
	close(s.c)
	close(s.closed)
}

func (c *Counter) watched(actorID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.watchers[actorID]
	return ok
}

func (c *Counter) watchedActors() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(c.watchers))
	for id := range c.watchers {
		ids = append(ids, id)
	}
	return ids
}

func (c *Counter) watch(ctx context.Context, actorID uuid.UUID, w *watcher) {
	defer close(w.done)

	var changes <-chan realtime.Change
	if c.feed != nil {
		ch, err := c.feed.Subscribe(ctx, actorID)
		if err != nil {
			c.logger.Warn("unread: realtime subscribe failed, polling only", "actor", actorID, "err", err)
		} else {
			changes = ch
		}
	}

	var signals <-chan struct{}
	if c.signals != nil {
		ch, cancel := c.signals.Subscribe()
		defer cancel()
		signals = ch
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	c.push(ctx, actorID)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.invalidate(actorID, "realtime")
		case _, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			c.invalidate(actorID, "broadcast")
		case <-ticker.C:
			c.invalidate(actorID, "poll")
		}
		c.push(ctx, actorID)
	}
}

// push recomputes the count and hands it to every current subscriber.
func (c *Counter) push(ctx context.Context, actorID uuid.UUID) {
	if ctx.Err() != nil || !c.watched(actorID) {
		return
	}
	n := c.Get(ctx, actorID, GetOptions{})

	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.watchers[actorID]
	if !ok {
		return
	}
	for s := range w.subs {
		select {
		case s.c <- n:
		default:
			// Replace the unread value with the newer one.
			select {
			case <-s.c:
			default:
			}
			s.c <- n
		}
	}
}

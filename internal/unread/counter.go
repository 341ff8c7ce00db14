// Package unread caches per-actor unread badge counts.
//
// A lookup within the TTL costs no I/O. Concurrent lookups for one actor share
// a single store query. Cached values are dropped by an explicit force, by
// realtime changes, by a periodic poll, and by the process-wide broadcast
// signal. Lookups never fail: a store error degrades to the last unexpired
// value, or zero.
package unread

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/pulse-inbox/internal/metrics"
	"github.com/vedran77/pulse-inbox/internal/realtime"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = 10 * time.Second
	DefaultPollInterval = 20 * time.Second
)

// Source computes an actor's total unread count across all inbox entries.
type Source interface {
	SumUnread(ctx context.Context, actorID uuid.UUID) (int, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Options struct {
	TTL          time.Duration
	PollInterval time.Duration
	Clock        Clock
	// Feed and Signals are optional; without them only force and polling
	// invalidate.
	Feed    realtime.Feed
	Signals *realtime.Broadcaster
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

type GetOptions struct {
	Force bool
}

// Status describes the cached state for an actor.
type Status struct {
	Count  int
	Cached bool
	Failed bool
}

// Invalidation is a request to drop cached counts, delivered through Listen.
type Invalidation struct {
	ActorID uuid.UUID
	All     bool
	Trigger string

	// applied is set by Queue, which has already dropped the cached count.
	applied bool
}

// entry is a computed count. An invalidated entry is stale: it is no longer
// served as a hit but remains the fallback until it expires.
type entry struct {
	count     int
	expiresAt time.Time
	stale     bool
}

func (e entry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// generation identifies a cache epoch. A refresh only stores its result if no
// invalidation happened while it ran.
type generation struct {
	epoch uint64
	actor uint64
}

type Counter struct {
	source  Source
	feed    realtime.Feed
	signals *realtime.Broadcaster
	ttl     time.Duration
	poll    time.Duration
	clock   Clock
	metrics *metrics.Metrics
	logger  *log.Logger

	group singleflight.Group

	mu       sync.Mutex
	entries  map[uuid.UUID]entry
	gens     map[uuid.UUID]uint64
	epoch    uint64
	failed   map[uuid.UUID]bool
	watchers map[uuid.UUID]*watcher
	closed   bool
}

func NewCounter(source Source, opts Options) *Counter {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Counter{
		source:   source,
		feed:     opts.Feed,
		signals:  opts.Signals,
		ttl:      opts.TTL,
		poll:     opts.PollInterval,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		entries:  make(map[uuid.UUID]entry),
		gens:     make(map[uuid.UUID]uint64),
		failed:   make(map[uuid.UUID]bool),
		watchers: make(map[uuid.UUID]*watcher),
	}
}

// Get returns the actor's unread count. It never returns an error.
func (c *Counter) Get(ctx context.Context, actorID uuid.UUID, opts GetOptions) int {
	if opts.Force {
		c.invalidate(actorID, "force")
	} else if n, ok := c.cached(actorID); ok {
		c.metrics.UnreadLookup("hit")
		return n
	}
	c.metrics.UnreadLookup("miss")

	// The shared computation must outlive any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(actorID.String(), func() (any, error) {
		return c.refresh(flightCtx, actorID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return c.degraded(actorID)
		}
		return res.Val.(int)
	case <-ctx.Done():
		// The shared refresh is still running; the caller just stopped waiting.
		return c.lastKnown(actorID)
	}
}

// Status reports what the cache currently holds for the actor.
func (c *Counter) Status(actorID uuid.UUID) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[actorID]
	ok = ok && !e.stale && e.live(c.clock.Now())
	return Status{Count: e.count, Cached: ok, Failed: c.failed[actorID]}
}

// Invalidate drops the actor's cached count.
func (c *Counter) Invalidate(actorID uuid.UUID) {
	c.invalidate(actorID, "explicit")
}

// InvalidateAll drops every cached count, including results of refreshes
// still in flight.
func (c *Counter) InvalidateAll() {
	c.mu.Lock()
	c.epoch++
	for id, e := range c.entries {
		e.stale = true
		c.entries[id] = e
	}
	c.mu.Unlock()
	c.metrics.Invalidated("all")
}

// Listen applies invalidation messages until ctx is done or in is closed.
// Subscribers of an invalidated actor get a fresh count pushed.
func (c *Counter) Listen(ctx context.Context, in <-chan Invalidation) {
	for {
		select {
		case <-ctx.Done():
			return
		case inv, ok := <-in:
			if !ok {
				return
			}
			trigger := inv.Trigger
			if trigger == "" {
				trigger = "message"
			}
			if inv.All {
				c.InvalidateAll()
				for _, actorID := range c.watchedActors() {
					c.push(ctx, actorID)
				}
				continue
			}
			if !inv.applied {
				c.invalidate(inv.ActorID, trigger)
			}
			c.push(ctx, inv.ActorID)
		}
	}
}

func (c *Counter) cached(actorID uuid.UUID) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[actorID]
	if !ok || e.stale || !e.live(c.clock.Now()) {
		return 0, false
	}
	return e.count, true
}

func (c *Counter) invalidate(actorID uuid.UUID, trigger string) {
	c.mu.Lock()
	if e, ok := c.entries[actorID]; ok {
		e.stale = true
		c.entries[actorID] = e
	}
	c.gens[actorID]++
	c.mu.Unlock()
	c.metrics.Invalidated(trigger)
}

// refresh runs inside the singleflight. It re-checks the cache first so a
// caller that missed just before another flight stored its value does not
// query again.
func (c *Counter) refresh(ctx context.Context, actorID uuid.UUID) (int, error) {
	c.mu.Lock()
	if e, ok := c.entries[actorID]; ok && !e.stale && e.live(c.clock.Now()) {
		c.mu.Unlock()
		return e.count, nil
	}
	gen := generation{epoch: c.epoch, actor: c.gens[actorID]}
	c.mu.Unlock()

	c.metrics.UnreadComputed()
	n, err := c.source.SumUnread(ctx, actorID)
	if err != nil {
		c.logger.Warn("unread: refresh failed", "actor", actorID, "err", err)
		return 0, err
	}

	c.mu.Lock()
	if gen == (generation{epoch: c.epoch, actor: c.gens[actorID]}) {
		c.entries[actorID] = entry{count: n, expiresAt: c.clock.Now().Add(c.ttl)}
	}
	delete(c.failed, actorID)
	c.mu.Unlock()
	return n, nil
}

func (c *Counter) degraded(actorID uuid.UUID) int {
	c.metrics.UnreadLookup("degraded")
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[actorID]; ok && e.live(c.clock.Now()) {
		return e.count
	}
	c.failed[actorID] = true
	return 0
}

// lastKnown returns the live cached count, stale or not, or zero. It does not
// mark the actor failed.
func (c *Counter) lastKnown(actorID uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[actorID]; ok && e.live(c.clock.Now()) {
		return e.count
	}
	return 0
}

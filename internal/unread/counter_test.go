package unread

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-inbox/internal/realtime"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSource struct {
	calls atomic.Int32
	count atomic.Int32
	fail  atomic.Bool
	gate  chan struct{}
}

func (s *fakeSource) SumUnread(ctx context.Context, actorID uuid.UUID) (int, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.fail.Load() {
		return 0, errors.New("connection reset")
	}
	return int(s.count.Load()), nil
}

type fakeFeed struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan realtime.Change
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subs: make(map[uuid.UUID]chan realtime.Change)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, actorID uuid.UUID) (<-chan realtime.Change, error) {
	ch := make(chan realtime.Change, 1)
	f.mu.Lock()
	f.subs[actorID] = ch
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, actorID)
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

func (f *fakeFeed) send(actorID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.subs[actorID]
	if !ok {
		return false
	}
	select {
	case ch <- realtime.Change{Op: realtime.OpUpdate, ActorID: actorID}:
	default:
	}
	return true
}

func recv(t *testing.T, sub *Subscription) int {
	t.Helper()
	select {
	case n, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no count pushed")
		return 0
	}
}

func TestGetCoalescesConcurrentLookups(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	src.count.Store(7)
	c := NewCounter(src, Options{Clock: newFakeClock()})
	actor := uuid.New()

	var wg sync.WaitGroup
	results := make([]int, 50)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Get(context.Background(), actor, GetOptions{})
		}()
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, n := range results {
		assert.Equal(t, 7, n)
	}
}

func TestGetServesCacheWithinTTL(t *testing.T) {
	src := &fakeSource{}
	src.count.Store(3)
	clock := newFakeClock()
	c := NewCounter(src, Options{Clock: clock})
	actor := uuid.New()
	ctx := context.Background()

	assert.Equal(t, 3, c.Get(ctx, actor, GetOptions{}))
	src.count.Store(4)

	clock.Advance(9 * time.Second)
	assert.Equal(t, 3, c.Get(ctx, actor, GetOptions{}))
	assert.Equal(t, int32(1), src.calls.Load())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 4, c.Get(ctx, actor, GetOptions{}))
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestGetForceBypassesCache(t *testing.T) {
	src := &fakeSource{}
	src.count.Store(1)
	c := NewCounter(src, Options{Clock: newFakeClock()})
	actor := uuid.New()
	ctx := context.Background()

	c.Get(ctx, actor, GetOptions{})
	src.count.Store(2)

	assert.Equal(t, 2, c.Get(ctx, actor, GetOptions{Force: true}))
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestGetKeepsLastCountOnFailure(t *testing.T) {
	src := &fakeSource{}
	src.count.Store(5)
	clock := newFakeClock()
	c := NewCounter(src, Options{Clock: clock})
	actor := uuid.New()
	ctx := context.Background()

	require.Equal(t, 5, c.Get(ctx, actor, GetOptions{}))

	src.fail.Store(true)
	assert.Equal(t, 5, c.Get(ctx, actor, GetOptions{Force: true}))
	assert.False(t, c.Status(actor).Failed)

	clock.Advance(11 * time.Second)
	assert.Equal(t, 0, c.Get(ctx, actor, GetOptions{}))
	assert.True(t, c.Status(actor).Failed)

	src.fail.Store(false)
	assert.Equal(t, 5, c.Get(ctx, actor, GetOptions{}))
	assert.False(t, c.Status(actor).Failed)
}

func TestGetFailureWithoutCacheReturnsZero(t *testing.T) {
	src := &fakeSource{}
	src.fail.Store(true)
	c := NewCounter(src, Options{Clock: newFakeClock()})
	actor := uuid.New()

	assert.Equal(t, 0, c.Get(context.Background(), actor, GetOptions{}))
	st := c.Status(actor)
	assert.True(t, st.Failed)
	assert.False(t, st.Cached)
}

func TestInvalidateDuringRefreshDropsResult(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	src.count.Store(1)
	c := NewCounter(src, Options{Clock: newFakeClock()})
	actor := uuid.New()

	done := make(chan int)
	go func() { done <- c.Get(context.Background(), actor, GetOptions{}) }()

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	c.Invalidate(actor)
	close(src.gate)
	assert.Equal(t, 1, <-done)

	assert.False(t, c.Status(actor).Cached)
}

func TestCallerCancelDoesNotMarkFailed(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	src.count.Store(7)
	c := NewCounter(src, Options{Clock: newFakeClock()})
	actor := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int)
	go func() { done <- c.Get(ctx, actor, GetOptions{}) }()

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.Equal(t, 0, <-done)
	assert.False(t, c.Status(actor).Failed)

	close(src.gate)
	require.Eventually(t, func() bool { return c.Status(actor).Cached }, time.Second, time.Millisecond)
	assert.Equal(t, 7, c.Get(context.Background(), actor, GetOptions{}))
	assert.False(t, c.Status(actor).Failed)
}

func TestInvalidateAllMarksEveryActorStale(t *testing.T) {
	src := &fakeSource{}
	c := NewCounter(src, Options{Clock: newFakeClock()})
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	c.Get(ctx, a, GetOptions{})
	c.Get(ctx, b, GetOptions{})
	require.True(t, c.Status(a).Cached)

	c.InvalidateAll()

	assert.False(t, c.Status(a).Cached)
	assert.False(t, c.Status(b).Cached)
}

func TestListenAppliesInvalidations(t *testing.T) {
	src := &fakeSource{}
	src.count.Store(2)
	c := NewCounter(src, Options{Clock: newFakeClock()})
	actor := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Get(ctx, actor, GetOptions{})

	in := make(chan Invalidation)
	go c.Listen(ctx, in)
	in <- Invalidation{ActorID: actor, Trigger: "message"}

	require.Eventually(t, func() bool { return !c.Status(actor).Cached }, time.Second, time.Millisecond)
	src.count.Store(6)
	assert.Equal(t, 6, c.Get(ctx, actor, GetOptions{}))
}

func TestQueueInvalidatesBeforeReturning(t *testing.T) {
	src := &fakeSource{}
	src.count.Store(2)
	c := NewCounter(src, Options{Clock: newFakeClock()})
	actor := uuid.New()
	ctx := context.Background()

	assert.Equal(t, 2, c.Get(ctx, actor, GetOptions{}))
	src.count.Store(0)

	q := NewQueue(c, 1)
	q.Invalidate(actor)

	assert.False(t, c.Status(actor).Cached)
	assert.Equal(t, 0, c.Get(ctx, actor, GetOptions{}))
}

func TestQueuePushesThroughListen(t *testing.T) {
	src := &fakeSource{}
	src.count.Store(3)
	c := NewCounter(src, Options{Clock: newFakeClock(), PollInterval: time.Hour})
	defer c.Close()
	actor := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(c, 8)
	go c.Listen(ctx, q.C())

	sub := c.Subscribe(context.Background(), actor)
	assert.Equal(t, 3, recv(t, sub))

	src.count.Store(0)
	q.Invalidate(actor)
	assert.Equal(t, 0, recv(t, sub))
}

func TestQueueFullDoesNotBlock(t *testing.T) {
	c := NewCounter(&fakeSource{}, Options{Clock: newFakeClock()})
	q := NewQueue(c, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 5 {
			q.Invalidate(uuid.New())
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Invalidate blocked on a full queue")
	}
	assert.Len(t, q.C(), 1)
}

func TestSubscribePushesOnRealtimeChange(t *testing.T) {
	src := &fakeSource{}
	src.count.Store(1)
	feed := newFakeFeed()
	c := NewCounter(src, Options{Clock: newFakeClock(), Feed: feed, PollInterval: time.Hour})
	defer c.Close()
	actor := uuid.New()

	sub := c.Subscribe(context.Background(), actor)
	assert.Equal(t, 1, recv(t, sub))

	src.count.Store(4)
	require.Eventually(t, func() bool { return feed.send(actor) }, time.Second, time.Millisecond)
	assert.Equal(t, 4, recv(t, sub))
}

func TestSubscribePushesOnBroadcast(t *testing.T) {
	src := &fakeSource{}
	signals := realtime.NewBroadcaster()
	c := NewCounter(src, Options{Clock: newFakeClock(), Signals: signals, PollInterval: time.Hour})
	defer c.Close()
	actor := uuid.New()

	sub := c.Subscribe(context.Background(), actor)
	assert.Equal(t, 0, recv(t, sub))

	src.count.Store(9)
	signals.Emit()
	assert.Equal(t, 9, recv(t, sub))
}

func TestSubscribePollsAsBackstop(t *testing.T) {
	src := &fakeSource{}
	c := NewCounter(src, Options{Clock: newFakeClock(), PollInterval: 10 * time.Millisecond})
	defer c.Close()
	actor := uuid.New()

	sub := c.Subscribe(context.Background(), actor)
	recv(t, sub)

	src.count.Store(3)
	require.Eventually(t, func() bool {
		select {
		case n := <-sub.C:
			return n == 3
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNoDeliveryAfterClose(t *testing.T) {
	src := &fakeSource{}
	feed := newFakeFeed()
	c := NewCounter(src, Options{Clock: newFakeClock(), Feed: feed, PollInterval: time.Hour})
	defer c.Close()
	actor := uuid.New()

	sub := c.Subscribe(context.Background(), actor)
	recv(t, sub)
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)

	// The watcher is gone once the last subscriber leaves.
	require.Eventually(t, func() bool { return !feed.send(actor) }, time.Second, time.Millisecond)
	sub.Close()
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	c := NewCounter(&fakeSource{}, Options{Clock: newFakeClock(), PollInterval: time.Hour})
	defer c.Close()
	ctx, cancel := context.WithCancel(context.Background())

	sub := c.Subscribe(ctx, uuid.New())
	recv(t, sub)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestCounterCloseEndsSubscriptions(t *testing.T) {
	c := NewCounter(&fakeSource{}, Options{Clock: newFakeClock(), PollInterval: time.Hour})
	a := c.Subscribe(context.Background(), uuid.New())
	b := c.Subscribe(context.Background(), uuid.New())

	c.Close()

	for _, sub := range []*Subscription{a, b} {
		for range sub.C {
		}
	}
	after := c.Subscribe(context.Background(), uuid.New())
	_, ok := <-after.C
	assert.False(t, ok)
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const minLimiterIdle = 10 * time.Minute

type actorLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per actor. Buckets idle for longer
// than they take to refill are swept, so dropping one never grants an actor
// more than a fresh bucket would.
type limiterPool struct {
	mu        sync.Mutex
	m         map[uuid.UUID]*actorLimiter
	rps       rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	refill := time.Duration(float64(burst) / rps * float64(time.Second))
	return &limiterPool{
		m:         make(map[uuid.UUID]*actorLimiter),
		rps:       rate.Limit(rps),
		burst:     burst,
		idle:      max(minLimiterIdle, refill),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (p *limiterPool) get(actorID uuid.UUID) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastSweep) >= p.idle {
		p.sweep(now)
	}
	l, ok := p.m[actorID]
	if !ok {
		l = &actorLimiter{Limiter: rate.NewLimiter(p.rps, p.burst)}
		p.m[actorID] = l
	}
	l.lastSeen = now
	return l.Limiter
}

func (p *limiterPool) sweep(now time.Time) {
	for id, l := range p.m {
		if now.Sub(l.lastSeen) >= p.idle {
			delete(p.m, id)
		}
	}
	p.lastSweep = now
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// RateLimit throttles each actor independently. It must run after Auth.
// Non-positive values fall back to 5 rps with a burst of 10.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	pool := newLimiterPool(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pool.get(GetActorID(r.Context())).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"Too many requests"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

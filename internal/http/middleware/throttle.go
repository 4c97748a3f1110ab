package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const (
	throttleSweepEvery = 3 * time.Minute
	throttleIdleAfter  = 5 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a per-client token bucket applied to state-changing requests.
type Throttle struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewThrottle allows rps requests per second per IP with the given burst.
// rps <= 0 disables throttling.
func NewThrottle(rps float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (t *Throttle) limiter(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	// idle entries are dropped inline so no background goroutine is needed
	if now.Sub(t.lastSweep) > throttleSweepEvery {
		for k, l := range t.limiters {
			if now.Sub(l.lastSeen) > throttleIdleAfter {
				delete(t.limiters, k)
			}
		}
		t.lastSweep = now
	}

	if l, ok := t.limiters[ip]; ok {
		l.lastSeen = now
		return l.limiter
	}
	l := rate.NewLimiter(t.rate, t.burst)
	t.limiters[ip] = &ipLimiter{limiter: l, lastSeen: now}
	return l
}

// Handler returns the fiber middleware. Safe methods are never throttled.
func (t *Throttle) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if t.rate <= 0 || safeMethod(c.Method()) {
			return c.Next()
		}
		if !t.limiter(c.IP()).Allow() {
			retryAfter := max(int(1/float64(t.rate)), 1)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}

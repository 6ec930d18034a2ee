package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/victornm/techquiz/internal/errors"
	"github.com/victornm/techquiz/internal/session"
)

const keySession = "session"

// requireSession lets a request through only when its token resolves to a logged-in session.
func (a *API) requireSession(c *gin.Context) {
	token := c.GetHeader(HeaderSession)
	if token == "" {
		token, _ = c.Cookie(CookieSession)
	}

	st, err := a.ss.Get(c.Request.Context(), token)
	if err != nil {
		abort(c, err)
		return
	}

	c.Set(keySession, st)
	c.Next()
}

// SessionFrom returns the session resolved by the guard. It is nil on unguarded routes.
func SessionFrom(c *gin.Context) *session.State {
	v, _ := c.Get(keySession)
	st, _ := v.(*session.State)
	return st
}

// rateLimit keeps one token bucket per client IP. A zero rate disables it.
func rateLimit(r float64, burst int) gin.HandlerFunc {
	if r <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	l := newIPLimiter(rate.Limit(r), burst, time.Now)

	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			abort(c, errors.New(errors.CodeResourceExhausted, errors.WithMessagef("Too many attempts. Please try again later.")))
			return
		}

		c.Next()
	}
}

const minLimiterIdle = 10 * time.Minute

type limiterEntry struct {
	l    *rate.Limiter
	seen time.Time
}

// ipLimiter forgets clients idle for longer than a full bucket refill.
// Idle entries are swept on access, at most once per idle period.
type ipLimiter struct {
	mu sync.Mutex

	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newIPLimiter(limit rate.Limit, burst int, now func() time.Time) *ipLimiter {
	if burst <= 0 {
		burst = 1
	}

	idle := time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	if idle < minLimiterIdle {
		idle = minLimiterIdle
	}

	return &ipLimiter{
		limit:     limit,
		burst:     burst,
		idle:      idle,
		now:       now,
		entries:   make(map[string]*limiterEntry),
		lastSweep: now(),
	}
}

func (il *ipLimiter) allow(ip string) bool {
	now := il.now()

	il.mu.Lock()
	defer il.mu.Unlock()

	if now.Sub(il.lastSweep) >= il.idle {
		il.sweep(now)
	}

	e, ok := il.entries[ip]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(il.limit, il.burst)}
		il.entries[ip] = e
	}
	e.seen = now

	return e.l.AllowN(now, 1)
}

func (il *ipLimiter) sweep(now time.Time) {
	for ip, e := range il.entries {
		if now.Sub(e.seen) >= il.idle {
			delete(il.entries, ip)
		}
	}
	il.lastSweep = now
}

// abort renders err as the response body. The cause is only logged.
func abort(c *gin.Context, err error) {
	e := errors.Convert(err)

	switch e.Code {
	case errors.CodeInternal:
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	case errors.CodeUnavailable:
		slog.WarnContext(c.Request.Context(), "api: backing service unavailable", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

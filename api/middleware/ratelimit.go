package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/recoveryfinder/models"
	"golang.org/x/time/rate"
)

// idleLimiter is how long a caller's bucket survives without requests.
const idleLimiter = time.Hour

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiters struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
}

func (l *limiters) get(identity string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[identity]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[identity] = e
	}
	e.lastSeen = now
	// drop idle callers
	for id, other := range l.entries {
		if now.Sub(other.lastSeen) > idleLimiter {
			delete(l.entries, id)
		}
	}
	return e.limiter
}

// RateLimit returns per-caller token-bucket rate limiting. The caller is the
// API key set by Auth, or the client IP.
func RateLimit(requestsPerSecond float64, burst int) gin.HandlerFunc {
	l := &limiters{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(requestsPerSecond),
		burst:   burst,
	}

	return func(c *gin.Context) {
		identity := c.ClientIP()
		if key, ok := c.Get(identityKey); ok {
			identity = key.(string)
		}

		if !l.get(identity, time.Now()).Allow() {
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}

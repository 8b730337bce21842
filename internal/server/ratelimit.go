package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Per-client request budgets.
var (
	GeneralLimit = rate.Every(time.Minute / 60)
	HeavyLimit   = rate.Every(time.Minute / 15)
)

const (
	GeneralBurst = 60
	HeavyBurst   = 15

	// maxTrackedClients bounds the limiter map; idle clients are dropped
	// once it is exceeded.
	maxTrackedClients = 4096
	clientIdleTTL     = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet keeps one token bucket per client IP.
type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
	now     func() time.Time
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (l *limiterSet) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.clients) >= maxTrackedClients {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > clientIdleTTL {
				delete(l.clients, k)
			}
		}
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func (l *limiterSet) middleware(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoginLimiter throttles auth requests per client IP. Clients idle long
// enough for their bucket to refill are forgotten.
type LoginLimiter struct {
	mu        sync.Mutex
	clients   map[string]*ipClient
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
	logger    *zap.Logger
}

type ipClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter allows perMinute requests per IP with a burst of a
// quarter of that. A non-positive perMinute disables limiting.
func NewLoginLimiter(perMinute int, logger *zap.Logger) *LoginLimiter {
	if perMinute <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := time.Minute / time.Duration(perMinute)
	burst := max(1, perMinute/4)
	return &LoginLimiter{
		clients: make(map[string]*ipClient),
		limit:   rate.Every(interval),
		burst:   burst,
		idle:    max(time.Minute, time.Duration(burst)*interval),
		now:     time.Now,
		logger:  logger,
	}
}

func (l *LoginLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	c, ok := l.clients[ip]
	if !ok {
		c = &ipClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// sweep drops clients not seen for l.idle. Callers hold l.mu.
func (l *LoginLimiter) sweep(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.idle {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

func (l *LoginLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if !l.allow(ip) {
			l.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, try again later"})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/observability"
)

// clientTTL bounds how long an idle per-client limiter survives.
const clientTTL = 10 * time.Minute

// cleanupInterval is how often idle client limiters are swept.
const cleanupInterval = time.Minute

// clientEntry holds a per-client limiter and its last access time.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter applies a per-client token bucket. It protects the
// session entry endpoint, which is the only route that writes to the
// durable store.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rps     float64
	burst   int
	logger  observability.Logger
	stopCh  chan struct{}
	stopped bool
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the rate limiter logger.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// NewRateLimiter creates a per-client rate limiter.
func NewRateLimiter(rps float64, burst int, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientEntry),
		rps:     rps,
		burst:   burst,
		logger:  observability.NopLogger(),
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(rl)
	}

	go rl.sweep()

	return rl
}

// Allow reports whether the client may proceed.
func (rl *RateLimiter) Allow(clientIP string) bool {
	now := time.Now()

	rl.mu.Lock()
	entry, ok := rl.clients[clientIP]
	if !ok {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
		}
		rl.clients[clientIP] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// sweep periodically drops limiters idle past the TTL.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for ip, entry := range rl.clients {
				if now.Sub(entry.lastAccess) > clientTTL {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop halts the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if !rl.stopped {
		rl.stopped = true
		close(rl.stopCh)
	}
}

// RateLimit answers 429 once a client exceeds its budget.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !rl.Allow(clientIP) {
			rl.logger.Warn("rate limit exceeded",
				observability.String("client_ip", clientIP),
				observability.String("path", c.Request.URL.Path),
			)

			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// RateLimitFromConfig builds the middleware from configuration; when
// disabled it returns a pass-through and a nil limiter.
func RateLimitFromConfig(cfg config.RateLimitConfig, logger observability.Logger) (gin.HandlerFunc, *RateLimiter) {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }, nil
	}

	rl := NewRateLimiter(cfg.RPS, cfg.Burst, WithRateLimiterLogger(logger))
	return RateLimit(rl), rl
}

package http

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"splitshifts/internal/metrics"
	"splitshifts/internal/service"
)

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter limita requests por IP de cliente con un token bucket.
type IPRateLimiter struct {
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	logger  *zap.Logger
	metrics metrics.Recorder

	mu       sync.Mutex
	limiters map[string]*ipLimiter
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewIPRateLimiter arranca una goroutine de limpieza; llamar a Stop al cerrar.
func NewIPRateLimiter(perMinute, burst int, logger *zap.Logger, rec metrics.Recorder) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	rl := &IPRateLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		ttl:      10 * time.Minute,
		logger:   logger,
		metrics:  rec,
		limiters: make(map[string]*ipLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop(rl.ttl / 2)
	return rl
}

func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if rl.get(ip).Allow() {
			c.Next()
			return
		}
		rl.metrics.RecordRateLimited("http")
		rl.logger.Warn("rate limit exceeded", zap.String("client_ip", ip), zap.String("path", c.FullPath()))
		c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
			Error:     true,
			ErrorType: string(service.KindRateLimited),
			Message:   service.ErrRateLimited.Message,
		})
	}
}

func (rl *IPRateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (rl *IPRateLimiter) retryAfter() int {
	secs := int(math.Ceil(1.0 / float64(rl.limit)))
	if secs < 1 {
		return 1
	}
	return secs
}

func (rl *IPRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *IPRateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *IPRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > rl.ttl {
			delete(rl.limiters, ip)
		}
	}
}

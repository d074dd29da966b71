package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appLogger "github.com/arklim/ratings-auth/internal/infra/logger"
)

// IPLimiterConfig sizes the in-process per-IP token buckets.
type IPLimiterConfig struct {
	Requests     int
	Window       time.Duration
	IdleEviction time.Duration
}

type ipBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPLimiter is a per-client-IP token bucket held in memory. Buckets idle for
// longer than IdleEviction are dropped by a janitor goroutine.
type IPLimiter struct {
	cfg    IPLimiterConfig
	limit  rate.Limit
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*ipBucket

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewIPLimiter starts the janitor and returns the limiter. A non-positive
// Requests or Window disables limiting.
func NewIPLimiter(cfg IPLimiterConfig, logger *zap.Logger) *IPLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleEviction <= 0 {
		cfg.IdleEviction = 30 * time.Minute
	}

	l := &IPLimiter{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		buckets: make(map[string]*ipBucket),
		stopCh:  make(chan struct{}),
	}
	if cfg.Requests > 0 && cfg.Window > 0 {
		l.limit = rate.Every(cfg.Window / time.Duration(cfg.Requests))
	}

	go l.janitor()

	return l
}

// Stop terminates the janitor. It is safe to call more than once.
func (l *IPLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Handler rejects requests once the client IP has spent its bucket.
func (l *IPLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limit == 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		now := l.now()

		reservation := l.bucket(ip, now).ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			l.logger.Warn("global rate limit exceeded",
				zap.String("client_ip", appLogger.MaskIP(ip)),
				zap.Duration("retry_after", delay),
			)
			RespondRateLimited(c, delay)
			return
		}

		c.Next()
	}
}

// Len reports the number of tracked client IPs.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *IPLimiter) bucket(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.cfg.Requests)}
		l.buckets[ip] = b
	}
	b.lastAccess = now
	return b.limiter
}

func (l *IPLimiter) janitor() {
	ticker := time.NewTicker(l.cfg.IdleEviction / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(l.now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *IPLimiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, b := range l.buckets {
		if now.Sub(b.lastAccess) > l.cfg.IdleEviction {
			delete(l.buckets, ip)
		}
	}
}

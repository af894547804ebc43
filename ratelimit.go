package qiao

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/qiao/pkg/logger"
)

// RateLimitConfig 请求限流配置
type RateLimitConfig struct {
	// PerSecond 每个 key 每秒允许的请求数，默认 100
	PerSecond float64

	// Burst 突发容量，默认取 PerSecond
	Burst int

	// KeyFunc 限流 key 提取器，默认取客户端 IP
	KeyFunc func(c *gin.Context) string

	// ExcludePaths 不限流的路径
	ExcludePaths []string

	// IdleExpiry 令牌桶闲置回收时间，默认 30 分钟
	IdleExpiry time.Duration

	// SweepInterval 闲置桶清扫间隔，默认 10 分钟
	SweepInterval time.Duration
}

// DefaultRateLimitConfig 返回默认限流配置
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		PerSecond:     100,
		Burst:         100,
		IdleExpiry:    30 * time.Minute,
		SweepInterval: 10 * time.Minute,
	}
}

// tokenBucket 令牌桶，按流逝时间补充
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	max        float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		max:        float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.max {
		b.tokens = b.max
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *tokenBucket) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.lastRefill)
}

// rateLimitStore 按 key 保存令牌桶
// 没有后台 goroutine：闲置桶在建桶的写路径上顺带清扫
type rateLimitStore struct {
	mu         sync.RWMutex
	buckets    map[string]*tokenBucket
	lastSweep  time.Time
	sweepEvery time.Duration
	idleExpiry time.Duration
}

func newRateLimitStore(sweepEvery, idleExpiry time.Duration) *rateLimitStore {
	return &rateLimitStore{
		buckets:    make(map[string]*tokenBucket),
		lastSweep:  time.Now(),
		sweepEvery: sweepEvery,
		idleExpiry: idleExpiry,
	}
}

func (s *rateLimitStore) bucket(key string, rate float64, burst int) *tokenBucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[key]; ok {
		return b
	}
	if now := time.Now(); now.Sub(s.lastSweep) >= s.sweepEvery {
		s.sweep(now)
	}
	b = newTokenBucket(rate, burst)
	s.buckets[key] = b
	return b
}

// sweep 回收闲置桶，调用方需持有写锁
func (s *rateLimitStore) sweep(now time.Time) {
	for key, b := range s.buckets {
		if b.idleSince(now) > s.idleExpiry {
			delete(s.buckets, key)
		}
	}
	s.lastSweep = now
}

// rateLimitMiddleware 令牌桶限流，超限返回 429
func rateLimitMiddleware(cfg *RateLimitConfig, log logger.Logger) gin.HandlerFunc {
	perSecond := cfg.PerSecond
	if perSecond <= 0 {
		perSecond = 100
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(perSecond)
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	sweepEvery := cfg.SweepInterval
	if sweepEvery <= 0 {
		sweepEvery = 10 * time.Minute
	}
	idleExpiry := cfg.IdleExpiry
	if idleExpiry <= 0 {
		idleExpiry = 30 * time.Minute
	}

	skip := make(map[string]bool, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		skip[p] = true
	}

	store := newRateLimitStore(sweepEvery, idleExpiry)

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		key := keyFunc(c)
		if !store.bucket(key, perSecond, burst).allow() {
			log.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Request.URL.Path),
			)
			render(c, Fail(http.StatusTooManyRequests, "too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}

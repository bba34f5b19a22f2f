package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig bounds overall request throughput and throttles the signup
// and token endpoints per client IP. When RedisAddr is set the per-IP counters
// live in Redis so the limits hold across replicas; otherwise they are kept
// in process memory.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	AuthLimit     int
	AuthWindow    time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration
	RedisTLS      RedisTLSConfig
}

type rateLimiter struct {
	global      *tokenBucket
	authLimit   int
	authWindow  time.Duration
	authMu      sync.Mutex
	authBuckets map[string]*ipLimiter
	store       tokenStore
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

type tokenStore interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func newRateLimiter(cfg RateLimitConfig) (*rateLimiter, error) {
	rl := &rateLimiter{
		authLimit:   cfg.AuthLimit,
		authWindow:  cfg.AuthWindow,
		authBuckets: make(map[string]*ipLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.authLimit < 0 {
		rl.authLimit = 0
	}
	if rl.authWindow <= 0 {
		rl.authWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.authLimit > 0 {
		store, err := newRedisStore(redisStoreConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.RedisTimeout,
			TLS:      cfg.RedisTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("configure redis rate-limit store: %w", err)
		}
		rl.store = store
	}
	return rl, nil
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowAuth throttles signup and token issuance per client key. The returned
// duration tells the caller how long to wait before retrying.
func (r *rateLimiter) AllowAuth(key string) (bool, time.Duration, error) {
	if r == nil || r.authLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		return r.store.Allow(fmt.Sprintf("yamdb:auth:%s", key), r.authLimit, r.authWindow)
	}
	if key == "" {
		key = "unknown"
	}
	r.authMu.Lock()
	limiter, exists := r.authBuckets[key]
	if !exists {
		rate := float64(r.authLimit) / r.authWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.authWindow.Seconds()
		}
		limiter = &ipLimiter{bucket: newTokenBucket(rate, r.authLimit)}
		r.authBuckets[key] = limiter
	}
	limiter.lastSeen = time.Now()
	r.cleanupLocked()
	r.authMu.Unlock()

	if limiter.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.authBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.authWindow)
	for key, limiter := range r.authBuckets {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.authBuckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}

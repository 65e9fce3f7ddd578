// Package ratelimit limits requests per key over a fixed window.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/trezcool/admissions/core"
)

// Limiter reports whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New returns a redis limiter when client is not nil, a memory one otherwise.
func New(conf core.RateLimitConfig, client *redis.Client) Limiter {
	if client != nil {
		return NewRedisLimiter(client, conf)
	}
	return NewMemoryLimiter(conf)
}

// MemoryLimiter keeps one token bucket per key. It refills at threshold per window.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(conf core.RateLimitConfig) *MemoryLimiter {
	threshold, window := normalize(conf)
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(threshold) / window.Seconds()),
		burst:    threshold,
	}
}

func (l *MemoryLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.getLimiter(key).Allow(), nil
}

// Cleanup forgets the keys whose bucket is full again.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// RedisLimiter counts requests in fixed windows shared by every API instance.
type RedisLimiter struct {
	client    *redis.Client
	threshold int64
	window    time.Duration
	nowFunc   func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, conf core.RateLimitConfig) *RedisLimiter {
	threshold, window := normalize(conf)
	return &RedisLimiter{
		client:    client,
		threshold: int64(threshold),
		window:    window,
		nowFunc:   time.Now,
	}
}

func (l *RedisLimiter) key(key string) string {
	slot := l.nowFunc().UnixNano() / int64(l.window)
	return "ratelimit:" + key + ":" + strconv.FormatInt(slot, 10)
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.key(key)
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "incrementing rate limit counter")
	}
	return incr.Val() <= l.threshold, nil
}

func normalize(conf core.RateLimitConfig) (int, time.Duration) {
	threshold, window := conf.Threshold, conf.Window
	if threshold < 1 {
		threshold = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return threshold, window
}

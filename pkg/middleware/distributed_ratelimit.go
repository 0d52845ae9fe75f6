package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/arbiterhq/casedesk/pkg/contextkeys"
	"github.com/arbiterhq/casedesk/pkg/httputil"
	"github.com/arbiterhq/casedesk/pkg/observability"
)

// DistributedRateLimiter implements fixed-window rate limiting in Redis
// so the limit holds across instances
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a Redis-backed limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

// Allow checks quota for the key. The returned error signals a Redis
// failure; the caller decides the fallback.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining returns the quota left in the current window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	count, err := rl.redis.Get(ctx, redisKey).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears the counter for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Err()
}

// RateLimitMiddleware applies per-caller limits, Redis-backed with a
// bounded in-process fallback when Redis is down
type RateLimitMiddleware struct {
	userLimiter *DistributedRateLimiter
	anonLimiter *DistributedRateLimiter

	userFallback *LocalRateLimiter
	anonFallback *LocalRateLimiter

	logger *observability.Logger
}

// NewRateLimitMiddleware creates the rate limit middleware
func NewRateLimitMiddleware(redisClient *redis.Client, logger *observability.Logger) (*RateLimitMiddleware, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	userFallback, err := NewLocalRateLimiter(PerUserRateLimitConfig(), 4096)
	if err != nil {
		return nil, err
	}
	anonFallback, err := NewLocalRateLimiter(DefaultRateLimitConfig(), 16384)
	if err != nil {
		return nil, err
	}

	return &RateLimitMiddleware{
		userLimiter:  NewDistributedRateLimiter(redisClient, PerUserRateLimitConfig(), "ratelimit:user"),
		anonLimiter:  NewDistributedRateLimiter(redisClient, DefaultRateLimitConfig(), "ratelimit:anon"),
		userFallback: userFallback,
		anonFallback: anonFallback,
		logger:       logger,
	}, nil
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, limiter, fallback := m.pick(r)

		allowed, err := m.allow(r.Context(), key, limiter, fallback)
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(limiter.config.WindowDuration.Seconds())))
			httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if err == nil {
			if remaining, rerr := limiter.Remaining(r.Context(), key); rerr == nil {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) pick(r *http.Request) (string, *DistributedRateLimiter, *LocalRateLimiter) {
	if principal := contextkeys.PrincipalFrom(r.Context()); principal != nil {
		return "user:" + principal.ID, m.userLimiter, m.userFallback
	}
	return "ip:" + clientIP(r), m.anonLimiter, m.anonFallback
}

func (m *RateLimitMiddleware) allow(ctx context.Context, key string, limiter *DistributedRateLimiter, fallback *LocalRateLimiter) (bool, error) {
	if limiter.redis != nil {
		allowed, err := limiter.Allow(ctx, key)
		if err == nil {
			return allowed, nil
		}
		m.logger.WithError(err).Warn("Redis rate limit check failed, using local fallback")
		return fallback.Allow(key), err
	}
	return fallback.Allow(key), redis.ErrClosed
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

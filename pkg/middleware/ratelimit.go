package middleware

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RateLimitConfig defines one rate limit window
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the length of the window
	WindowDuration time.Duration
}

// DefaultRateLimitConfig limits anonymous callers
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
	}
}

// PerUserRateLimitConfig limits authenticated callers
func PerUserRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
	}
}

// localWindow is one key's counter in the in-process limiter
type localWindow struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// LocalRateLimiter is a bounded in-process fixed-window limiter. It
// backs up the Redis limiter when Redis is unreachable; the LRU bound
// keeps a traffic spike from growing the key set without limit.
type LocalRateLimiter struct {
	config  *RateLimitConfig
	windows *lru.Cache[string, *localWindow]
	now     func() time.Time
}

// NewLocalRateLimiter creates an in-process limiter tracking at most
// maxKeys distinct callers
func NewLocalRateLimiter(config *RateLimitConfig, maxKeys int) (*LocalRateLimiter, error) {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if maxKeys <= 0 {
		maxKeys = 4096
	}
	windows, err := lru.New[string, *localWindow](maxKeys)
	if err != nil {
		return nil, err
	}
	return &LocalRateLimiter{
		config:  config,
		windows: windows,
		now:     time.Now,
	}, nil
}

// Allow reports whether the key has quota left in the current window
func (rl *LocalRateLimiter) Allow(key string) bool {
	w, ok := rl.windows.Get(key)
	if !ok {
		w = &localWindow{}
		// Another goroutine may race the insert; use whichever won
		if prev, found, _ := rl.windows.PeekOrAdd(key, w); found {
			w = prev
		}
	}

	now := rl.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.After(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(rl.config.WindowDuration)
	}
	w.count++
	return w.count <= rl.config.RequestsPerWindow
}

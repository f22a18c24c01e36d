package auth

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiter gates requests with a fixed-window counter per key
type RateLimiter interface {
	// Check counts one attempt for key and reports whether it is allowed.
	Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (RateLimitResult, error)
	// Reset clears the counter for key.
	Reset(ctx context.Context, key string) error
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiterOption configures a MemoryRateLimiter
type RateLimiterOption func(*MemoryRateLimiter)

// WithClock overrides the limiter's time source
func WithClock(now func() time.Time) RateLimiterOption {
	return func(rl *MemoryRateLimiter) {
		rl.now = now
	}
}

// MemoryRateLimiter implements RateLimiter in process memory.
// Counters are lost on restart.
type MemoryRateLimiter struct {
	mu         sync.Mutex
	windows    map[string]*rateWindow
	maxEntries int
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryRateLimiter creates a new rate limiter.
// A positive cleanupInterval starts a background sweep of expired windows;
// maxEntries bounds the number of tracked keys (0 means unbounded).
func NewMemoryRateLimiter(cleanupInterval time.Duration, maxEntries int, opts ...RateLimiterOption) *MemoryRateLimiter {
	rl := &MemoryRateLimiter{
		windows:    make(map[string]*rateWindow),
		maxEntries: maxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}

	if cleanupInterval > 0 {
		rl.wg.Add(1)
		go rl.cleanupLoop(cleanupInterval)
	}
	return rl
}

// Check implements the fixed-window algorithm
func (rl *MemoryRateLimiter) Check(_ context.Context, key string, maxAttempts int, window time.Duration) (RateLimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]

	if !ok {
		rl.makeRoom(now)
		w = &rateWindow{}
		rl.windows[key] = w
	}

	if !ok || now.After(w.resetAt) {
		w.count = 1
		w.resetAt = now.Add(window)
		return RateLimitResult{Allowed: true, Remaining: max(maxAttempts-1, 0)}, nil
	}

	if w.count >= maxAttempts {
		return RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: max(ceilSeconds(w.resetAt.Sub(now)), 1),
		}, nil
	}

	w.count++
	return RateLimitResult{Allowed: true, Remaining: maxAttempts - w.count}, nil
}

// Reset clears the rate limit for a key
func (rl *MemoryRateLimiter) Reset(_ context.Context, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
	return nil
}

// Cleanup removes windows that have already elapsed and returns how many were dropped
func (rl *MemoryRateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sweep(rl.now())
}

// Len returns the number of tracked keys
func (rl *MemoryRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// Stop halts the background sweep. Safe to call more than once.
func (rl *MemoryRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
	rl.wg.Wait()
}

func (rl *MemoryRateLimiter) cleanupLoop(interval time.Duration) {
	defer rl.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// sweep must be called with mu held
func (rl *MemoryRateLimiter) sweep(now time.Time) int {
	removed := 0
	for key, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, key)
			removed++
		}
	}
	return removed
}

// makeRoom must be called with mu held
func (rl *MemoryRateLimiter) makeRoom(now time.Time) {
	if rl.maxEntries <= 0 || len(rl.windows) < rl.maxEntries {
		return
	}
	if rl.sweep(now) > 0 {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, w := range rl.windows {
		if oldestKey == "" || w.resetAt.Before(oldest) {
			oldestKey = key
			oldest = w.resetAt
		}
	}
	delete(rl.windows, oldestKey)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

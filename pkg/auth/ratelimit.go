package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds the limit of one service tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Burst is the bucket size. Zero means RequestsPerMinute.
	Burst int `yaml:"burst"`
}

// TokenBucketLimiter keeps one token bucket per subject and tier.
type TokenBucketLimiter struct {
	tiers       map[string]TierConfig
	defaultTier TierConfig

	mu       sync.Mutex
	limiters map[string]*subjectLimiter
	now      func() time.Time
}

type subjectLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a limiter. Tiers without an entry use
// defaultRPM. A limit of zero or less means unlimited.
func NewTokenBucketLimiter(tiers map[string]TierConfig, defaultRPM int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		tiers:       tiers,
		defaultTier: TierConfig{RequestsPerMinute: defaultRPM},
		limiters:    make(map[string]*subjectLimiter),
		now:         time.Now,
	}
}

// Allow takes a token from the identity's bucket.
func (l *TokenBucketLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier()
	tc, ok := l.tiers[tier]
	if !ok {
		tc = l.defaultTier
	}
	if tc.RequestsPerMinute <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier
	now := l.now()

	l.mu.Lock()
	sl, ok := l.limiters[key]
	if !ok {
		burst := tc.Burst
		if burst <= 0 {
			burst = tc.RequestsPerMinute
		}
		sl = &subjectLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(tc.RequestsPerMinute)), burst)}
		l.limiters[key] = sl
	}
	sl.lastSeen = now
	l.mu.Unlock()

	if !sl.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// Sweep drops buckets not used for idleFor and returns how many were removed.
func (l *TokenBucketLimiter) Sweep(idleFor time.Duration) int {
	cutoff := l.now().Add(-idleFor)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, sl := range l.limiters {
		if sl.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

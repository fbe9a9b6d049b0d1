package middleware

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter throttles repeated attempts per client
type Limiter interface {
	// IsLimited checks if a client is rate limited
	IsLimited(clientID string) bool

	// Record records an attempt
	Record(clientID string)
}

// RateLimiter implements a sliding-window limiter in process memory
type RateLimiter struct {
	attempts   map[string][]time.Time
	limit      int
	window     time.Duration
	mu         sync.Mutex
	cleanupInt time.Duration
	lastClean  time.Time
}

// NewRateLimiter creates a new in-memory rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:   make(map[string][]time.Time),
		limit:      limit,
		window:     window,
		cleanupInt: time.Minute * 5,
		lastClean:  time.Now(),
	}
}

// IsLimited checks if a client is rate limited
func (r *RateLimiter) IsLimited(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Clean up old entries periodically
	if time.Since(r.lastClean) > r.cleanupInt {
		r.cleanup()
		r.lastClean = time.Now()
	}

	attempts := r.attempts[clientID]
	if len(attempts) == 0 {
		return false
	}

	cutoff := time.Now().Add(-r.window)
	count := 0
	for _, t := range attempts {
		if t.After(cutoff) {
			count++
		}
	}

	return count >= r.limit
}

// Record records an attempt
func (r *RateLimiter) Record(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts[clientID] = append(r.attempts[clientID], time.Now())
}

// cleanup removes old entries
func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-r.window)
	for clientID, attempts := range r.attempts {
		var valid []time.Time
		for _, t := range attempts {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}
		if len(valid) > 0 {
			r.attempts[clientID] = valid
		} else {
			delete(r.attempts, clientID)
		}
	}
}

// RedisRateLimiter implements a fixed-window limiter shared across
// instances. Counters live in Redis keyed per client and expire with
// the window.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
	logger *log.Logger
}

// NewRedisRateLimiter creates a Redis-backed rate limiter
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration, logger *log.Logger) *RedisRateLimiter {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisRateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:",
		logger: logger,
	}
}

// IsLimited checks if a client is rate limited. Redis errors fail open
// so an outage never locks everyone out.
func (r *RedisRateLimiter) IsLimited(clientID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	count, err := r.client.Get(ctx, r.prefix+clientID).Int64()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		r.logger.Printf("rate limiter read failed for %s: %v", clientID, err)
		return false
	}

	return count >= r.limit
}

// Record records an attempt
func (r *RedisRateLimiter) Record(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key := r.prefix + clientID
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.logger.Printf("rate limiter write failed for %s: %v", clientID, err)
		return
	}

	// First attempt in the window starts the expiry clock
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			r.logger.Printf("rate limiter expire failed for %s: %v", clientID, err)
		}
	}
}

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
	"github.com/checkpoint-edu/checkpoint/internal/handler"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits in the current window
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// defaultWindow replaces a non-positive window
const defaultWindow = time.Minute

// RateLimiter tracks request counts per key in process memory
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a sliding window limiter. Call Close to stop its cleanup loop.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = defaultWindow
	}

	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	validRequests := rl.requests[key][:0]
	for _, reqTime := range rl.requests[key] {
		if reqTime.After(cutoff) {
			validRequests = append(validRequests, reqTime)
		}
	}

	if len(validRequests) >= rl.limit {
		rl.requests[key] = validRequests
		return false, nil
	}

	rl.requests[key] = append(validRequests, now)
	return true, nil
}

func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}

// cleanupLoop periodically removes old entries to prevent memory leak
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes keys with no recent requests
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window * 2)

	for key, requests := range rl.requests {
		if len(requests) == 0 || !requests[len(requests)-1].After(cutoff) {
			delete(rl.requests, key)
		}
	}
}

// RedisLimiter is a fixed window counter shared by every server instance
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter falls back to a one minute window when window is not positive
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = defaultWindow
	}

	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		now:    time.Now,
	}
}

// bucketKey names the counter of key for the current window
func (rl *RedisLimiter) bucketKey(key string) string {
	bucket := rl.now().UnixNano() / int64(rl.window)
	return rl.prefix + key + ":" + strconv.FormatInt(bucket, 10)
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.bucketKey(key)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}

	return incr.Val() <= int64(rl.limit), nil
}

// RateLimit rejects requests over the limit with a 429 envelope. Limiter
// errors let the request through.
func RateLimit(limiter Limiter, respond *handler.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			allowed, err := limiter.Allow(r.Context(), r.URL.Path+"|"+ip)
			if err != nil {
				slog.Warn("rate limiter unavailable", "error", err, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				slog.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
				)
				respond.Error(w, r, apperr.New(apperr.KindTooManyRequests, "Too many requests. Please try again later."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP expects chi's RealIP middleware to have rewritten RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

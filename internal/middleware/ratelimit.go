package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/aditya/go-waypool/internal/errors"
	"github.com/aditya/go-waypool/pkg/utils"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis    *redis.Client
	requests int
	window   time.Duration
}

func NewRateLimiter(redisClient *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:    redisClient,
		requests: requests,
		window:   window,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := "ratelimit:" + rl.subject(r) + ":" + r.URL.Path

		count, err := rl.bump(ctx, key)
		if err != nil {
			// Redis down must not block bookings.
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requests - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > rl.requests {
			utils.Error(w, apperrors.NewAPIError("rate_limit_exceeded",
				"too many requests, please try again later", http.StatusTooManyRequests))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// subject prefers the acting user over the client address so passengers
// behind one NAT don't starve each other.
func (rl *RateLimiter) subject(r *http.Request) string {
	if actor := ActorID(r.Context()); actor != "" {
		return actor
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}

func (rl *RateLimiter) bump(ctx context.Context, key string) (int, error) {
	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// Package ratelimit limits requests per client in fixed windows kept in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corray333/backend-labs/storefront/pkg/http/middleware/auth"
	"github.com/corray333/backend-labs/storefront/pkg/http/respond"
)

// Counter increments a windowed counter and returns the new value.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter keeps counters in Redis with the window as TTL.
type RedisCounter struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisCounter(rdb redis.Cmdable, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RedisCounter{rdb: rdb, prefix: prefix}
}

// Incr bumps the counter; the TTL is only set when the key is created.
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, c.prefix+":"+key)
		pipe.ExpireNX(ctx, c.prefix+":"+key, window)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rate limit counter: %w", err)
	}

	return incr.Val(), nil
}

// Config sets the allowed requests per window.
type Config struct {
	Requests int64
	Window   time.Duration
}

// NewRateLimitMiddleware answers 429 once a client exceeds the limit. The
// client is the authenticated user when known, otherwise the remote IP.
// Counter failures let the request through.
func NewRateLimitMiddleware(counter Counter, cfg Config) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.Requests <= 0 || cfg.Window <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			n, err := counter.Incr(r.Context(), key, cfg.Window)
			if err != nil {
				slog.WarnContext(r.Context(), "Rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)

				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(cfg.Requests, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(cfg.Requests-n, 0), 10))

			if n > cfg.Requests {
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				respond.Error(w, http.StatusTooManyRequests, "rate limit exceeded")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(id.UserID, 10)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	return "ip:" + host
}

package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/dvloznov/budget-insights/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window limiter backed by Redis INCR/EXPIRE.
// A nil client or any Redis error lets the request through.
type RateLimiter struct {
	client      redis.Cmdable
	maxRequests int64
	window      time.Duration
}

// NewRateLimiter allows maxRequests per window for each caller.
func NewRateLimiter(client redis.Cmdable, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:      client,
		maxRequests: int64(maxRequests),
		window:      window,
	}
}

// Handler enforces the limit. Callers are keyed by authenticated user when
// known, otherwise by remote address.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.client == nil || l.maxRequests <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		endpoint := routePattern(r)
		key := "rl:" + strconv.FormatInt(int64(l.window.Seconds()), 10) + ":" + callerKey(r)

		count, err := l.incr(r.Context(), key)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			w.Header().Set("X-RateLimit-Error", "redis-error")
			next.ServeHTTP(w, r)
			return
		}

		if count > l.maxRequests {
			metrics.RLBlocked.WithLabelValues(endpoint).Inc()
			WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		metrics.RLRequests.WithLabelValues(endpoint).Inc()
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) incr(ctx context.Context, key string) (int64, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 || count > l.maxRequests {
		if err := l.ensureExpiry(ctx, key, count == 1); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// ensureExpiry starts the window on the first hit. Blocked callers re-check
// the TTL so a key left without one still expires.
func (l *RateLimiter) ensureExpiry(ctx context.Context, key string, first bool) error {
	if !first {
		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil {
			return err
		}
		if ttl >= 0 {
			return nil
		}
	}
	return l.client.Expire(ctx, key, l.window).Err()
}

func callerKey(r *http.Request) string {
	if id := UserID(r.Context()); id != "" {
		return "user:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

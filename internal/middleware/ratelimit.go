package middleware

import (
	"encoding/json"
	"net"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/pkg/logger"
)

// maxTrackedClients bounds the per-client limiter table.
const maxTrackedClients = 10000

// RateLimiter throttles requests per client address. Limiters for clients not
// seen recently are evicted.
type RateLimiter struct {
	limiters *lru.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with burst per client.
func NewRateLimiter(requestsPerSecond float64, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	if burst <= 0 {
		burst = 1
	}
	limiters, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &RateLimiter{
		limiters: limiters,
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		log:      log,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	if existing, ok, _ := rl.limiters.PeekOrAdd(key, l); ok {
		return existing
	}
	return l
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.limiter(key).Allow() {
			rl.log.WithField("client", key).
				WithField("path", r.URL.Path).
				WithField("request_id", RequestID(r.Context())).
				Warn("rate limit exceeded")

			svcErr := errors.RateLimited("too many requests")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(svcErr.HTTPStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": string(svcErr.Code), "error": svcErr.Message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

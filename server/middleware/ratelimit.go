package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yunaworks/dearbot/errors"
	"github.com/yunaworks/dearbot/server/metrics"
)

type rateLimiters struct {
	visitors map[string]*rate.Limiter
	mu       sync.RWMutex
}

var limiters = &rateLimiters{
	visitors: make(map[string]*rate.Limiter),
}

func (l *rateLimiters) GetOrCreate(ip string, create func() *rate.Limiter) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.visitors[ip]
	if !exists {
		limiter = create()
		l.visitors[ip] = limiter
	}

	return limiter
}

// RateLimit middleware implements rate limiting per IP address. The limit is
// generous for a single-user skill: it exists to absorb platform retries and
// accidental loops, not to meter real traffic.
func RateLimit(m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get IP address from request
			ip := r.RemoteAddr
			if idx := strings.LastIndex(ip, ":"); idx != -1 {
				ip = ip[:idx] // Strip port number if present
			}

			limiter := limiters.GetOrCreate(ip, func() *rate.Limiter {
				return rate.NewLimiter(rate.Every(time.Second), 30)
			})

			if !limiter.Allow() {
				m.RateLimitHits.WithLabelValues(ip).Inc()
				requestID := GetRequestID(r.Context())
				err := errors.NewRateLimitError(requestID, 1)
				errors.LogError(errors.DefaultLogger, err, requestID)
				errors.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ResetRateLimiters resets all rate limiters. Only used for testing.
func ResetRateLimiters() {
	limiters.mu.Lock()
	defer limiters.mu.Unlock()
	limiters.visitors = make(map[string]*rate.Limiter)
}

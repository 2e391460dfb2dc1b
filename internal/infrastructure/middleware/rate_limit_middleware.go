package middleware

import (
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"pairview/pkg/config"
)

// RateLimiterStore stores per-key (for example, per IP) rate limiters.
type RateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
}

func NewRateLimiterStore(r rate.Limit, burst int) *RateLimiterStore {
	return &RateLimiterStore{
		limiters:  make(map[string]*rate.Limiter),
		rate:      r,
		burstSize: burst,
	}
}

func (s *RateLimiterStore) GetLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, exists := s.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(s.rate, s.burstSize)
		s.limiters[key] = limiter
	}
	return limiter
}

// Allow is a convenience for one-shot checks.
func (s *RateLimiterStore) Allow(key string) bool {
	return s.GetLimiter(key).Allow()
}

// ClientIP extracts the IP part from the request's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := net.ParseIP(xff); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware returns Gin middleware applying per-IP rate
// limiting to the HTTP surface.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := NewRateLimiterStore(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
	)

	return func(c *gin.Context) {
		if !store.Allow(ClientIP(c.Request)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// NewConnectionRateLimiter returns the per-IP limiter the signaling server
// consults before upgrading a socket, or nil when rate limiting is off.
func NewConnectionRateLimiter(cfg *config.Config) *RateLimiterStore {
	if !cfg.RateLimiting.Enabled {
		return nil
	}
	perMinute := rate.Limit(float64(cfg.RateLimiting.WebSocket.ConnectionsPerMinute) / 60.0)
	return NewRateLimiterStore(perMinute, cfg.RateLimiting.WebSocket.Burst)
}

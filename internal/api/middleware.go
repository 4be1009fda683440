// Package api serves a REST view of a running sync server: sessions,
// entities, traffic counters and host usage, plus token-guarded control
// endpoints.
package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func reject(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// RequireToken guards a group with "Authorization: Bearer <token>". A
// missing header is 401, a wrong token 403. An empty token disables it.
func RequireToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			return
		}
		got, ok := extractBearerToken(c.GetHeader("Authorization"))
		switch {
		case !ok:
			reject(c, http.StatusUnauthorized, "missing or invalid authorization header")
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			reject(c, http.StatusForbidden, "invalid control token")
		}
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || token == "" || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return token, true
}

// IPWhitelist admits only clients inside one of the listed networks. Bare
// addresses count as single-host networks; unparsable entries are logged
// and ignored. An empty list admits everyone.
func IPWhitelist(entries []string) gin.HandlerFunc {
	nets := parseNetworks(entries)
	return func(c *gin.Context) {
		if len(entries) == 0 {
			return
		}
		ip := net.ParseIP(c.ClientIP())
		for _, n := range nets {
			if ip != nil && n.Contains(ip) {
				return
			}
		}
		reject(c, http.StatusForbidden, "access denied: IP not whitelisted")
	}
}

func parseNetworks(entries []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e); err == nil {
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(e)
		if ip == nil {
			log.Warn().Str("entry", e).Msg("ignoring invalid whitelist entry")
			continue
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// RateLimiter keeps one token bucket per client IP. Buckets refill at rps
// and hold up to twice that.
type RateLimiter struct {
	mu      sync.Mutex
	rps     float64
	burst   float64
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter returns a limiter allowing rps requests per second per
// client. rps <= 0 disables limiting.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		rps:     float64(rps),
		burst:   float64(2 * rps),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// take spends one token for key, reporting false when the bucket is empty.
func (rl *RateLimiter) take(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[key] = b
	}
	b.tokens = min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.rps)
	b.seen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps > 0 && !rl.take(c.ClientIP()) {
			reject(c, http.StatusTooManyRequests, "rate limit exceeded")
		}
	}
}

// SecurityHeaders sets the response headers every endpoint carries.
func SecurityHeaders() gin.HandlerFunc {
	headers := [][2]string{
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Referrer-Policy", "no-referrer"},
		{"Server", "netsync"},
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
	}
	return func(c *gin.Context) {
		for _, h := range headers {
			c.Header(h[0], h[1])
		}
	}
}

// RequestLogger logs each request at debug level once it has been served.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("api request")
	}
}

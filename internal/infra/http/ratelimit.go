package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"datatoken/internal/domain"
)

const (
	routeWrite     = "write"
	routeAuthorize = "authorize"
	routeAudit     = "audit"
)

// limit counts requests per client address and route group. A limiter
// error lets the request through unless the server is configured to fail
// closed.
func (s *Server) limit(routeID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.RateLimiter == nil || s.cfg.RateLimitRequests <= 0 {
			c.Next()
			return
		}
		key := "route:" + routeID + ":client:" + c.ClientIP()
		decision, err := s.deps.RateLimiter.Allow(c.Request.Context(), key, s.cfg.RateLimitRequests, s.cfg.RateLimitWindow)
		if err != nil {
			s.log.Warn("rate limiter unavailable", zap.String("route", routeID), zap.Error(err))
			if s.cfg.RateLimitFailClosed {
				writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
				c.Abort()
				return
			}
			c.Next()
			return
		}
		writeRateLimitHeaders(c, decision)
		if !decision.Allowed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if decision.ResetAt.IsZero() {
		return
	}
	c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if !decision.Allowed {
		retry := int64(time.Until(decision.ResetAt).Seconds())
		if retry < 0 {
			retry = 0
		}
		c.Header("Retry-After", strconv.FormatInt(retry, 10))
	}
}

package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tabula/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	routeRecordsCreate = "records:create"
	routeRecordsUpdate = "records:update"
	routeFetchesAppend = "fetches:append"
	routeAssessmentPut = "assessment:put"
	routeHealthRecalc  = "health:recalculate"
)

// enforceRateLimit applies the fixed-window limit per subject and route.
// The subject is the acting author when the request names one, otherwise
// the client IP. A limiter error fails open unless configured closed.
func (s *Server) enforceRateLimit(c *gin.Context, routeID, subject string) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	if subject == "" {
		subject = c.ClientIP()
	}
	key := fmt.Sprintf("actor:%s:endpoint:%s", subject, routeID)

	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		resetUnix := decision.ResetAt.Unix()
		c.Header("RateLimit-Reset", strconv.FormatInt(resetUnix, 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}

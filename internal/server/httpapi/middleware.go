package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/metrics"
	"github.com/artelie/backend/internal/server/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDKey, reqID)
		c.Header(requestIDHeader, reqID)
		c.Next()
	}
}

// Logger logs every request and records the request metrics.
func Logger(l logging.Logger) gin.HandlerFunc {
	l = l.With("module", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		l.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		)

		code := strconv.Itoa(status)
		metrics.RequestCount.WithLabelValues(c.Request.Method, path, code).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, path, code).Observe(latency.Seconds())
	}
}

func Recovery(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				l.Error(c.Request.Context(), "panic",
					"error", p,
					"path", c.Request.URL.Path,
					"request_id", c.GetString(requestIDKey),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					errorResponse{Code: codeInternal, Message: "internal server error"})
			}
		}()
		c.Next()
	}
}

// RateLimit throttles requests per client IP under scope. A limiter failure
// lets the request through.
func RateLimit(scope string, limiter ratelimit.Limiter, l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP(), time.Now())
		if err != nil {
			l.Warn(c.Request.Context(), "rate limiter unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimited.WithLabelValues(scope).Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			abortWithError(c, common.ErrRateLimited)
			return
		}
		c.Next()
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oriys/cachebridge/internal/auth"
	"github.com/oriys/cachebridge/internal/logging"
	"github.com/oriys/cachebridge/internal/observability"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// requestID reuses the caller's request ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one logging.RequestLog per request when the access log
// is configured.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !logging.Default().Enabled() {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		traceID, spanID := observability.SpanIDs(c.Request.Context())
		entry := &logging.RequestLog{
			RequestID:  c.GetString(requestIDKey),
			TraceID:    traceID,
			SpanID:     spanID,
			Method:     c.Request.Method,
			Route:      route,
			Cache:      c.Param("cache"),
			Status:     c.Writer.Status(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   c.ClientIP(),
		}
		if id := auth.GetIdentity(c.Request.Context()); id != nil {
			entry.Subject = id.Subject
		}
		if err := c.Errors.Last(); err != nil {
			entry.Error = err.Error()
		}
		logging.Default().Log(entry)
	}
}

// authenticate rejects requests without valid credentials.
func authenticate(a auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.Authenticate(c.Request)
		if err != nil {
			logging.OpWithTrace(observability.SpanIDs(c.Request.Context())).
				Debug("request rejected", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// authorize checks that the caller's token covers the requested cache.
func authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := auth.GetIdentity(c.Request.Context())
		if !id.CanUse(c.Param("cache")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not grant access to cache " + c.Param("cache")})
			return
		}
		c.Next()
	}
}

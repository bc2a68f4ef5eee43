package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// requestID middleware stamps every request with a correlation ID, reusing
// one supplied by the caller if present. Grounded on the teacher's
// server.go middleware chain (RequestID runs first), rebuilt here since the
// teacher's own implementation was not part of the retrieved pack.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// panicRecovery converts a panic into a 500 Response envelope instead of
// gin's default plaintext trace, logging the recovered value.
func panicRecovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.FullPath()).Msg("recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
					Success: false,
					Error:   &Error{Code: "INTERNAL", Message: "internal server error"},
				})
			}
		}()
		c.Next()
	}
}

// requestLogger logs one structured line per request after it completes,
// matching the teacher's zerolog-based access logging.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// timeout bounds request handling with a context deadline, so a stuck
// downstream call (storage, scheduler) can't hold a connection forever.
func timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// securityHeaders sets a conservative baseline header set for an
// API-only server (no inline script/style surface to whitelist).
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// requireJSONContentType rejects bodies on mutating requests that don't
// declare application/json, so handlers never see a binding error caused
// by form-encoded or missing content types.
func requireJSONContentType() gin.HandlerFunc {
	mutating := map[string]bool{http.MethodPost: true, http.MethodPut: true, http.MethodPatch: true}
	return func(c *gin.Context) {
		if mutating[c.Request.Method] && c.Request.ContentLength > 0 && c.ContentType() != "application/json" {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, Response{
				Success: false,
				Error:   &Error{Code: "VALIDATION", Message: "Content-Type must be application/json"},
			})
			return
		}
		c.Next()
	}
}

// rateLimit applies a shared token bucket across all requests, protecting
// the process from being overwhelmed by a misbehaving host client.
func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
				Success: false,
				Error:   &Error{Code: "TRANSIENT", Message: "rate limit exceeded"},
			})
			return
		}
		c.Next()
	}
}

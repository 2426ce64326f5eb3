package http

import (
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/auth"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

const (
	headerRequestID = "X-Request-ID"

	ctxRequestID = "request_id"
	ctxCallerID  = "caller_id"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// requestIDMiddleware adds a unique request ID to each request and a
// request-scoped logger to its context.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(headerRequestID, requestID)

		ctx := logger.WithContext(c.Request.Context(), s.logger.WithRequestID(requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// loggingMiddleware logs every request, at a level chosen by status class.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Latency(time.Since(start)),
			logger.String("ip", c.ClientIP()),
			logger.String("request_id", c.GetString(ctxRequestID)),
		}
		if caller := c.GetString(ctxCallerID); caller != "" {
			fields = append(fields, logger.String("caller_id", caller))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logger.String("error", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("http request", fields...)
		default:
			s.logger.Info("http request", fields...)
		}
	}
}

// metricsMiddleware records request counts and latency per route template.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.deps.Metrics.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					logger.Any("panic", rec),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", c.Request.URL.Path),
					logger.String("request_id", c.GetString(ctxRequestID)),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: msgInternal})
			}
		}()
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLER IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// authMiddleware resolves the bearer token to the calling user.
// Requests without a valid token never reach a handler.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok || s.deps.Tokens == nil {
			s.abort(c, shared.ErrUnauthenticated)
			return
		}

		userID, err := s.deps.Tokens.Verify(token)
		if err != nil {
			s.abort(c, err)
			return
		}

		c.Set(ctxCallerID, userID.String())
		c.Next()
	}
}

// adminMiddleware requires the administrator API key.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(s.config.AdminKeyHeader)
		if key == "" {
			s.abort(c, shared.ErrAdminRequired)
			return
		}
		if !s.deps.AdminKey.Verify(key) {
			s.abort(c, shared.ErrAdminDenied)
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware throttles per caller. Limiter failures let the request
// through.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.ComputeLimiter == nil {
			c.Next()
			return
		}

		caller := c.GetString(ctxCallerID)
		decision, err := s.deps.ComputeLimiter.Allow(c.Request.Context(), caller)
		if err != nil {
			s.logger.Warn("rate limiter unavailable",
				logger.String("backend", s.deps.ComputeLimiter.Backend()),
				logger.UserID(caller),
				logger.Err(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			s.deps.Metrics.IncRateLimited(s.deps.ComputeLimiter.Backend())
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			s.abort(c, shared.ErrTooManyRequests)
			return
		}

		c.Next()
	}
}

// callerID returns the authenticated caller set by authMiddleware.
func callerID(c *gin.Context) string {
	return c.GetString(ctxCallerID)
}

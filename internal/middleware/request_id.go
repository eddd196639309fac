package middleware

import (
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDKey is the gin context key holding the request id
const RequestIDKey = "request_id"

// RequestIDMiddleware adds a unique request ID to each request.
// An incoming X-Request-ID header is reused, otherwise a new UUID is generated.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		withRequestID := logger.WithRequestID(requestID)
		method := c.Request.Method
		path := c.Request.URL.Path

		logger.Log.Debug("request started",
			withRequestID,
			logger.WithIP(c.ClientIP()),
			zap.String("method", method),
			zap.String("path", path),
		)

		c.Next()

		logger.Log.Debug("request completed",
			withRequestID,
			logger.WithStatus(c.Writer.Status()),
			zap.String("method", method),
			zap.String("path", path),
		)
	}
}

// GetRequestID returns the request id set by RequestIDMiddleware
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(RequestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

package middleware

import (
	"crypto/subtle"

	"github.com/Bhogyaan/threads/backend/internal/errors"
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/util"
	"github.com/gin-gonic/gin"
)

// InternalTokenHeader carries the shared secret for service-to-service calls
const InternalTokenHeader = "X-Internal-Token"

// RequireInternalToken guards endpoints only CRUD processes may call.
// An empty token disables the endpoints entirely.
func RequireInternalToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			util.RespondWithAPIError(c, errors.ServiceUnavailable("internal event ingest"))
			c.Abort()
			return
		}

		got := c.GetHeader(InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Log.Warn("Rejected internal request",
				logger.WithIP(c.ClientIP()),
				logger.WithRequestID(GetRequestID(c)),
			)
			util.RespondUnauthorized(c, "invalid internal token")
			c.Abort()
			return
		}

		c.Next()
	}
}

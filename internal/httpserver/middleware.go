package httpserver

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/types"
)

const (
	requestIDKey     = "request_id"
	requestIDHeader  = "X-Request-ID"
	actorKey         = "actor"
	headerAuthorID   = "X-Author-ID"
	headerAuthorName = "X-Author-Name"
	headerRoles      = "X-Author-Roles"
)

// RequestIDMiddleware tags every request with an id, reusing the caller's.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware writes one structured line per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logger.S().With(
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
		if len(c.Errors) > 0 {
			log.Errorw("request", "errors", c.Errors.String())
			return
		}
		log.Infow("request")
	}
}

// ActorMiddleware reads the identity set by the authenticating proxy. No
// headers means an anonymous reader.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var actor types.Actor
		if raw := strings.TrimSpace(c.GetHeader(headerAuthorID)); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil || id == 0 {
				abortWith(c, &types.ValidationError{Message: headerAuthorID + " must be a positive integer"})
				return
			}
			actor.ID = uint(id)
			actor.Username = strings.TrimSpace(c.GetHeader(headerAuthorName))
			for _, role := range strings.Split(c.GetHeader(headerRoles), ",") {
				if role = strings.TrimSpace(role); role != "" {
					actor.Roles = append(actor.Roles, role)
				}
			}
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func currentActor(c *gin.Context) types.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(types.Actor); ok {
			return actor
		}
	}
	return types.Actor{}
}

package util

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	logger "github.com/piwdev/member-management-kiro-sub000/logging"
)

func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(code, gin.H{"error": message})
}

// RespondWithValidationError returns the full violation list so a client can
// fix everything in one round trip.
func RespondWithValidationError(c *gin.Context, ve *apperrors.ValidationError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      "validation failed",
		"violations": ve.Violations,
	})
}

// ActorFromContext reads the acting principal set by the auth middleware.
// Empty when the request carried no verifiable identity.
func ActorFromContext(c *gin.Context) string {
	actor, exists := c.Get("actor")
	if !exists {
		return ""
	}
	s, _ := actor.(string)
	return s
}

// WithRequestMeta copies the request's identity and origin into the plain
// context so services below the HTTP layer can stamp audit records.
func WithRequestMeta(ctx context.Context, actor, remoteAddr, userAgent string) context.Context {
	ctx = context.WithValue(ctx, actorKey, actor)
	ctx = context.WithValue(ctx, remoteAddrKey, remoteAddr)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

type requestMetaKey string

const (
	actorKey      requestMetaKey = "actor"
	remoteAddrKey requestMetaKey = "remoteAddr"
	userAgentKey  requestMetaKey = "userAgent"
)

// ActorFrom reads the acting principal from a plain context.
func ActorFrom(ctx context.Context) string {
	s, _ := ctx.Value(actorKey).(string)
	return s
}

// RemoteAddrFrom reads the request origin from a plain context.
func RemoteAddrFrom(ctx context.Context) string {
	s, _ := ctx.Value(remoteAddrKey).(string)
	return s
}

// UserAgentFrom reads the client identification from a plain context.
func UserAgentFrom(ctx context.Context) string {
	s, _ := ctx.Value(userAgentKey).(string)
	return s
}

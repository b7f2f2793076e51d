package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/piwdev/member-management-kiro-sub000/config"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

// ActorClaims is the token payload the admin frontends mint.
type ActorClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Actor extracts the acting principal from a bearer token and threads it,
// together with the request origin, into the request context so audit
// records can name who acted. Requests without a token proceed anonymously;
// presenting an invalid token is rejected.
func Actor() gin.HandlerFunc {
	secret := []byte(config.GetString("auth.jwtSecret"))
	return func(c *gin.Context) {
		actor := ""
		header := c.GetHeader("Authorization")
		if header != "" {
			tokenString := strings.TrimPrefix(header, "Bearer ")
			claims, err := parseActorToken(secret, tokenString)
			if err != nil {
				logger.Warn("Rejected invalid bearer token",
					zap.Error(err),
					zap.String("ip", c.ClientIP()))
				util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", apperrors.ErrUnauthorized)
				c.Abort()
				return
			}
			actor = claims.Subject
			c.Set("actor", actor)
		}

		ctx := util.WithRequestMeta(c.Request.Context(), actor, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func parseActorToken(secret []byte, tokenString string) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

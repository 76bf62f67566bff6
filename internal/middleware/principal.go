package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"hostpanel/internal/apperr"
	"hostpanel/internal/auth"
	"hostpanel/internal/model"
)

const principalContextKey = "principal"

// Resolver resolves a bearer credential presented from origin.
type Resolver interface {
	Resolve(ctx context.Context, rawBearer, origin string) (model.Principal, bool)
}

// AbortWithError renders err as the error envelope with its mapped status.
func AbortWithError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.ErrInternal(err)
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(e.Kind), model.Failure(e.Message, e.Code))
	if e.Kind == apperr.Internal {
		_ = c.Error(err)
	}
}

func PrincipalFromContext(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

// RequirePrincipal resolves the Authorization header into a principal. The
// client IP is the origin checked against API key allow lists.
func RequirePrincipal(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, apperr.ErrUnauthorized())
			return
		}
		p, ok := resolver.Resolve(c.Request.Context(), token, c.ClientIP())
		if !ok {
			AbortWithError(c, apperr.ErrUnauthorized())
			return
		}
		c.Set(principalContextKey, p)
		c.Next()
	}
}

// RequireDaemonSecret guards the daemon callback routes with the shared
// secret.
func RequireDaemonSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok || !auth.SecretsEqual(secret, token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.Failure("Invalid daemon secret", apperr.CodeUnauthorized))
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ragdesk/internal/model"
	"ragdesk/internal/pkg/jwtutil"
	"ragdesk/internal/transport/http/response"
)

const (
	ContextClaimsKey   = "claims"
	ContextUserIDKey   = "user_id"
	ContextUserNameKey = "user_name"
)

// UserResolver maps a token subject to a local user record.
type UserResolver interface {
	ResolveUser(externalID, name, email string) (*model.User, error)
}

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// RequireAdmin must run after AuthJWT.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok || claims.Role != jwtutil.RoleAdmin {
			response.Abort(c, http.StatusForbidden, response.CodeForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

// ResolveUser must run after AuthJWT. It loads or creates the user named by
// the token subject and stores the local user id in the context.
func ResolveUser(resolver UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
			return
		}
		if claims.Role != jwtutil.RoleUser {
			response.Abort(c, http.StatusForbidden, response.CodeForbidden, "user token required")
			return
		}
		user, err := resolver.ResolveUser(claims.Subject, claims.Name, claims.Email)
		if err != nil || user == nil {
			response.Abort(c, http.StatusInternalServerError, response.CodeInternalServer, "resolve user failed")
			return
		}
		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextUserNameKey, user.Name)
		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) (*jwtutil.Claims, bool) {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwtutil.Claims)
	return claims, ok
}

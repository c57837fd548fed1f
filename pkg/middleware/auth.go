package middleware

import (
	"net/http"
	"strings"
	"time"

	"tickethub/pkg/config"
	"tickethub/pkg/httpapi"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const (
	ContextUserID = "auth.user_id"
	ContextRole   = "auth.role"
)

type tokenClaims struct {
	jwt.Claims
	Role string `json:"role"`
}

// Authenticate validates the bearer token and stores subject and role on the
// request context. Missing or invalid tokens end the request with 401.
func Authenticate(cfg *config.Config) gin.HandlerFunc {
	secret := []byte(cfg.Auth.JWTSecret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		var claims tokenClaims
		if err := token.Claims(secret, &claims); err != nil {
			abort(c, http.StatusUnauthorized, "invalid token signature")
			return
		}

		expected := jwt.Expected{Time: time.Now()}
		if cfg.Auth.Issuer != "" {
			expected.Issuer = cfg.Auth.Issuer
		}
		if err := claims.ValidateWithLeeway(expected, cfg.Auth.Leeway); err != nil {
			abort(c, http.StatusUnauthorized, "token expired or not yet valid")
			return
		}

		if claims.Subject == "" || claims.Role == "" {
			abort(c, http.StatusUnauthorized, "token missing subject or role")
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// Authorize enforces the RBAC policy for the authenticated role.
func Authorize(enforcer *casbin.Enforcer, object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		ok, err := enforcer.Enforce(role, object, action)
		if err != nil {
			abort(c, http.StatusInternalServerError, "authorization check failed")
			return
		}
		if !ok {
			abort(c, http.StatusForbidden, "insufficient role")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, httpapi.Response{Status: httpapi.StatusError, Message: message})
}

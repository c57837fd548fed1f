package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tickethub/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.Issuer = "tickethub"
	cfg.Auth.Leeway = time.Minute
	return cfg
}

func signToken(t *testing.T, subject, role string, expiry time.Time) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(testSecret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	claims := tokenClaims{
		Claims: jwt.Claims{
			Subject:  subject,
			Issuer:   "tickethub",
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Expiry:   jwt.NewNumericDate(expiry),
		},
		Role: role,
	}

	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func newAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := NewEnforcer()
	require.NoError(t, err)

	router := gin.New()
	router.GET("/tickets",
		Authenticate(testConfig()),
		Authorize(enforcer, "tickets", "read"),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"user": c.GetString(ContextUserID)})
		},
	)
	router.POST("/revoke",
		Authenticate(testConfig()),
		Authorize(enforcer, "revocations", "write"),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	return router
}

func do(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateMissingToken(t *testing.T) {
	router := newAuthRouter(t)
	rec := do(router, http.MethodGet, "/tickets", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	router := newAuthRouter(t)
	token := signToken(t, "u-1", "user", time.Now().Add(-time.Hour))
	rec := do(router, http.MethodGet, "/tickets", token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateGarbageToken(t *testing.T) {
	router := newAuthRouter(t)
	rec := do(router, http.MethodGet, "/tickets", "not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserCanReadTickets(t *testing.T) {
	router := newAuthRouter(t)
	token := signToken(t, "u-1", "user", time.Now().Add(time.Hour))
	rec := do(router, http.MethodGet, "/tickets", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "u-1")
}

func TestUserCannotRevoke(t *testing.T) {
	router := newAuthRouter(t)
	token := signToken(t, "u-1", "user", time.Now().Add(time.Hour))
	rec := do(router, http.MethodPost, "/revoke", token)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminInheritsUserAndRevokes(t *testing.T) {
	router := newAuthRouter(t)
	token := signToken(t, "admin-1", "admin", time.Now().Add(time.Hour))

	rec := do(router, http.MethodGet, "/tickets", token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodPost, "/revoke", token)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSuperAdminInheritsAdmin(t *testing.T) {
	router := newAuthRouter(t)
	token := signToken(t, "root-1", "super_admin", time.Now().Add(time.Hour))
	rec := do(router, http.MethodPost, "/revoke", token)
	require.Equal(t, http.StatusOK, rec.Code)
}

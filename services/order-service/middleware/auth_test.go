package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func newRouter(provider IdentityProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(provider))
	r.GET("/me", func(c *gin.Context) {
		p, err := GetPrincipal(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID.String(), "admin": p.IsAdministrator})
	})
	r.GET("/admin", AdminOnly(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestAuthMiddleware_Gateway(t *testing.T) {
	r := newRouter(GatewayIdentityProvider{})
	userID := uuid.NewString()

	tests := []struct {
		name   string
		setup  func(*http.Request)
		path   string
		status int
	}{
		{"missing identity", func(*http.Request) {}, "/me", http.StatusUnauthorized},
		{"bad uuid", func(r *http.Request) { r.Header.Set("X-User-ID", "42") }, "/me", http.StatusUnauthorized},
		{"header identity", func(r *http.Request) { r.Header.Set("X-User-ID", userID) }, "/me", http.StatusOK},
		{"cookie identity ignored", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "user_id", Value: userID}) }, "/me", http.StatusUnauthorized},
		{"role cookie ignored", func(r *http.Request) {
			r.Header.Set("X-User-ID", userID)
			r.AddCookie(&http.Cookie{Name: "user_role", Value: "admin"})
		}, "/admin", http.StatusForbidden},
		{"customer on admin route", func(r *http.Request) { r.Header.Set("X-User-ID", userID) }, "/admin", http.StatusForbidden},
		{"admin on admin route", func(r *http.Request) {
			r.Header.Set("X-User-ID", userID)
			r.Header.Set("X-User-Role", "admin")
		}, "/admin", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAuthMiddleware_JWT(t *testing.T) {
	r := newRouter(NewJWTIdentityProvider(testSecret))
	userID := uuid.NewString()
	exp := time.Now().Add(time.Hour).Unix()

	valid := signToken(t, jwt.MapClaims{"user_id": userID, "role": "admin", "typ": "access", "exp": exp})
	refresh := signToken(t, jwt.MapClaims{"user_id": userID, "typ": "refresh", "exp": exp})
	expired := signToken(t, jwt.MapClaims{"user_id": userID, "typ": "access", "exp": time.Now().Add(-time.Hour).Unix()})

	tests := []struct {
		name   string
		token  string
		path   string
		status int
	}{
		{"no token", "", "/me", http.StatusUnauthorized},
		{"valid", valid, "/me", http.StatusOK},
		{"admin claim", valid, "/admin", http.StatusNoContent},
		{"refresh token rejected", refresh, "/me", http.StatusUnauthorized},
		{"expired", expired, "/me", http.StatusUnauthorized},
		{"garbage", "abc.def.ghi", "/me", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestJWTIdentityProvider_GatewayHeadersIgnored(t *testing.T) {
	r := newRouter(NewJWTIdentityProvider(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", uuid.NewString())
	req.Header.Set("X-User-Role", "admin")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

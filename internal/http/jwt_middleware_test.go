package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"dama-exam/internal/service"
)

func newTestAuthService(t *testing.T) *service.AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return service.NewAuthService(string(hash), "secret", 15*time.Minute, 30*time.Minute, service.NewMemoryRefreshTokenStore())
}

func TestJWTAuthMiddleware_AllowsValidAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newTestAuthService(t)
	pair, err := auth.Login("letmein")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	r := gin.New()
	r.GET("/protected", JWTAuthMiddleware(auth), func(c *gin.Context) {
		claims, ok := GetAuthClaims(c)
		if !ok || claims.Subject != "admin" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newTestAuthService(t)

	r := gin.New()
	r.GET("/protected", JWTAuthMiddleware(auth), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsRefreshTokenAsAccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newTestAuthService(t)
	pair, err := auth.Login("letmein")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	r := gin.New()
	r.GET("/protected", JWTAuthMiddleware(auth), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

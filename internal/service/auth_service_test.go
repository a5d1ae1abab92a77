package service

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newAuthForTest(t *testing.T) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return NewAuthService(string(hash), "secret", 15*time.Minute, time.Hour, NewMemoryRefreshTokenStore())
}

func TestAuthService_LoginAndParse(t *testing.T) {
	auth := newAuthForTest(t)

	pair, err := auth.Login("letmein")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token pair, got %+v", pair)
	}

	claims, err := auth.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Subject != "admin" || claims.TokenType != "access" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestAuthService_RejectsWrongPassword(t *testing.T) {
	auth := newAuthForTest(t)

	if _, err := auth.Login("guess"); err != ErrBadCredentials {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestAuthService_UnconfiguredIsUnavailable(t *testing.T) {
	auth := NewAuthService("", "", time.Minute, time.Hour, NewMemoryRefreshTokenStore())

	if _, err := auth.Login("anything"); err != ErrAuthUnavailable {
		t.Fatalf("expected ErrAuthUnavailable, got %v", err)
	}
}

func TestAuthService_RefreshRotation(t *testing.T) {
	auth := newAuthForTest(t)

	pair, err := auth.Login("letmein")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := auth.RefreshPair(pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.AccessToken == "" {
		t.Fatal("expected a fresh access token")
	}

	// The old refresh token was revoked by the rotation.
	if _, err := auth.RefreshPair(pair.RefreshToken); err != ErrJWTInvalid {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}
}

func TestAuthService_AccessTokenCannotRefresh(t *testing.T) {
	auth := newAuthForTest(t)

	pair, err := auth.Login("letmein")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := auth.RefreshPair(pair.AccessToken); err != ErrJWTInvalid {
		t.Fatalf("expected ErrJWTInvalid for access token, got %v", err)
	}
}

package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AuthService gates the admin surface: a single shared password checked
// against a bcrypt hash, exchanged for a JWT pair. There are no user
// accounts here; the subject is always "admin".
type AuthService struct {
	passwordHash []byte
	secret       []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	issuer       string
	store        RefreshTokenStore
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid      = errors.New("jwt invalid")
	ErrBadCredentials  = errors.New("bad credentials")
	ErrAuthUnavailable = errors.New("admin auth not configured")
)

func NewAuthService(passwordHash, secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *AuthService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &AuthService{
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		issuer:       "dama-exam",
		store:        store,
	}
}

// Login checks the admin password and issues a token pair.
func (s *AuthService) Login(password string) (TokenPair, error) {
	if len(s.passwordHash) == 0 || len(s.secret) == 0 {
		return TokenPair{}, ErrAuthUnavailable
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return TokenPair{}, ErrBadCredentials
	}
	return s.generatePair()
}

// RefreshPair rotates a refresh token: the presented jti must exist in
// the store and is revoked before a new pair is issued.
func (s *AuthService) RefreshPair(refreshToken string) (TokenPair, error) {
	if len(s.secret) == 0 || strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.TokenType != "refresh" || claims.ID == "" {
		return TokenPair{}, ErrJWTInvalid
	}
	ok, err := s.store.Exists(claims.ID)
	if err != nil || !ok {
		return TokenPair{}, ErrJWTInvalid
	}
	if err := s.store.Revoke(claims.ID); err != nil {
		return TokenPair{}, ErrJWTInvalid
	}
	return s.generatePair()
}

func (s *AuthService) ParseAccessToken(accessToken string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "access" {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *AuthService) generatePair() (TokenPair, error) {
	now := time.Now().UTC()

	access, err := s.signToken(now, s.accessTTL, "access", "")
	if err != nil {
		return TokenPair{}, err
	}

	jti := uuid.NewString()
	refresh, err := s.signToken(now, s.refreshTTL, "refresh", jti)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Store(jti, "admin", s.refreshTTL); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *AuthService) signToken(now time.Time, ttl time.Duration, tokenType, jti string) (string, error) {
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *AuthService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrJWTInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrJWTInvalid
	}
	if claims.Issuer != s.issuer {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

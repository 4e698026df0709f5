package service

import (
	"testing"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth() AuthService {
	return NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: 1})
}

func signed(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func TestIssueAndVerifyToken(t *testing.T) {
	auth := newTestAuth()

	tok, err := auth.IssueToken("user-1")
	require.NoError(t, err)

	userID, err := auth.UserIDFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestUserIDFromTokenRejects(t *testing.T) {
	auth := newTestAuth()
	now := time.Now()
	valid := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", signed(t, jwt.SigningMethodHS256, []byte("other"), valid), ErrInvalidToken},
		{"wrong method", signed(t, jwt.SigningMethodHS512, []byte("test-secret"), valid), ErrInvalidToken},
		{"unsigned", signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid), ErrInvalidToken},
		{"no expiry", signed(t, jwt.SigningMethodHS256, []byte("test-secret"), jwt.RegisteredClaims{Subject: "user-1"}), ErrInvalidToken},
		{"no subject", signed(t, jwt.SigningMethodHS256, []byte("test-secret"), jwt.RegisteredClaims{ExpiresAt: valid.ExpiresAt}), ErrInvalidToken},
		{"expired", signed(t, jwt.SigningMethodHS256, []byte("test-secret"), jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		}), ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.UserIDFromToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTokenWithinLeewayAccepted(t *testing.T) {
	auth := newTestAuth()
	tok := signed(t, jwt.SigningMethodHS256, []byte("test-secret"), jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-10 * time.Second)),
	})

	userID, err := auth.UserIDFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

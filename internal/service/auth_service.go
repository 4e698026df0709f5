package service

import (
	"errors"
	"time"

	"github.com/Marga-Ghale/powerline-backend/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// ============================================
// Auth Service
// ============================================

// AuthService validates the bearer tokens issued by the platform's identity
// provider. Login flows live elsewhere.
type AuthService interface {
	// UserIDFromToken verifies tokenString and returns its subject.
	UserIDFromToken(tokenString string) (string, error)
	// IssueToken signs an access token for userID. Used by the development
	// seed and tests.
	IssueToken(userID string) (string, error)
}

type authService struct {
	secret []byte
	expiry time.Duration
	parser *jwt.Parser
}

// clock skew tolerated between us and the identity provider
const tokenLeeway = 30 * time.Second

func NewAuthService(cfg *config.Config) AuthService {
	return &authService{
		secret: []byte(cfg.JWTSecret),
		expiry: time.Duration(cfg.JWTExpiry) * time.Hour,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(tokenLeeway),
		),
	}
}

func (s *authService) UserIDFromToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", ErrInvalidToken
	case claims.Subject == "":
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *authService) IssueToken(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
	})
	return token.SignedString(s.secret)
}

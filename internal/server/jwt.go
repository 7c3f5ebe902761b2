package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jonathan/one-click-apply/internal/config"
)

// tokenIssuer is the issuer of external message tokens.
const tokenIssuer = "oneclick"

// ExternalClaims identify a page or extension allowed to send external messages.
type ExternalClaims struct {
	Origin string `json:"origin,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 tokens for external messages.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns a TokenService, or nil when external authentication is
// disabled.
func NewTokenService(cfg config.ExternalConfig) *TokenService {
	if !cfg.Enabled() {
		return nil
	}
	return &TokenService{secret: []byte(cfg.JWTSecret), ttl: cfg.TokenTTL.Duration, now: time.Now}
}

// Issue returns a token for subject, optionally bound to origin.
func (s *TokenService) Issue(subject, origin string) (string, error) {
	now := s.now()
	claims := &ExternalClaims{
		Origin: origin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken returns the subject of a valid token.
func (s *TokenService) ValidateToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token string is empty")
	}
	claims := &ExternalClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", fmt.Errorf("token expired: %w", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", fmt.Errorf("invalid token signature: %w", err)
	case err != nil:
		return "", fmt.Errorf("failed to parse token: %w", err)
	case !parsed.Valid:
		return "", errors.New("token is not valid")
	}
	return claims.Subject, nil
}

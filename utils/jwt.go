package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cppla/anyrate/config"
)

// Claims defines JWT claims used for visitor sessions and admin sessions.
type Claims struct {
	VisitorID string `json:"visitor_id"`
	Provider  string `json:"provider"`
	Admin     bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken issues a session JWT for the given visitor identity.
func GenerateToken(visitorID, provider string, admin bool, duration time.Duration) (string, error) {
	cfg := config.Get()

	claims := Claims{
		VisitorID: visitorID,
		Provider:  provider,
		Admin:     admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken validates a JWT and returns its claims.
func ParseToken(tokenStr string) (*Claims, error) {
	cfg := config.Get()
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

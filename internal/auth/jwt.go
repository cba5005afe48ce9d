package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT shape an external auth system issues for a
// handshake token: an authorization bitmask and the nickname to
// assign, rather than the session's own identity (§6 "user-auth token
// resolver").
type Claims struct {
	AuthLevel uint32 `json:"auth_level"`
	Nickname  string `json:"nickname"`
	jwt.RegisteredClaims
}

// JWTConfig holds the verification parameters for tokens issued by the
// external auth system. Secret must match the issuer's signing key.
type JWTConfig struct {
	Secret []byte
	Issuer string
}

// GenerateToken signs a token for the given auth level and nickname.
// Used by tests and by operator tooling that issues tokens out of
// band; the server itself only ever validates.
func GenerateToken(cfg *JWTConfig, ttl time.Duration, authLevel uint32, nickname string) (string, error) {
	now := time.Now()
	claims := Claims{
		AuthLevel: authLevel,
		Nickname:  nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a JWT token string against cfg.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	return claims, nil
}

// Package jwtauth issues and verifies the short-lived access tokens returned
// by the client-credentials token endpoint.
package jwtauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Generator defines the interface for access token generation.
type Generator interface {
	// GenerateToken creates a signed token for the given client id.
	GenerateToken(clientID string) (string, time.Duration, error)
}

// generator implements the Generator interface.
type generator struct {
	secret     []byte
	expiration time.Duration
}

// NewGenerator creates a new token generator with the provided secret and expiration duration.
func NewGenerator(secret string, expiration time.Duration) Generator {
	return &generator{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// GenerateToken creates a signed HS256 token with standard claims.
// The subject claim carries the client id.
func (g *generator) GenerateToken(clientID string) (string, time.Duration, error) {
	claims := jwt.MapClaims{
		"sub": clientID,
		"exp": time.Now().Add(g.expiration).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, g.expiration, nil
}

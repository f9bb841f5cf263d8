// Package auth issues and checks the bearer tokens that guard the daemon's
// mutating HTTP endpoints.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ScopeSync allows triggering synchronization.
const ScopeSync = "sync"

// Claims adds the granted scope to the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// GenerateToken signs a token for subject valid from now for validity.
func GenerateToken(subject, scope string, secret []byte, now time.Time, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Scope: scope,
	})
	return token.SignedString(secret)
}

// ParseToken verifies tokenString against secret and returns its claims.
// Expired tokens yield common.ErrTokenExpired, anything else that fails
// verification yields common.ErrInvalidToken.
func ParseToken(tokenString string, secret []byte, now time.Time) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

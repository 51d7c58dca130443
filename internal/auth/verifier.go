// Package auth verifies the bearer access tokens presented on the auth frame.
// Token issuance lives with the identity collaborator; this side only checks
// signature, expiry, and token type.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pscheid92/presencepulse/internal/domain"
)

// Claims is the payload the identity collaborator signs into access tokens.
type Claims struct {
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed access tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the token and returns the authenticated user. Refresh tokens
// are rejected; only access tokens may open a connection.
func (v *Verifier) Verify(_ context.Context, token string) (domain.UserID, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, domain.ErrTokenInvalid
	}
	if claims.TokenType != "access" {
		return 0, domain.ErrTokenInvalid
	}
	if claims.UserID <= 0 {
		return 0, domain.ErrTokenInvalid
	}
	return domain.UserID(claims.UserID), nil
}

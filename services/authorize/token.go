package authorize

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the unverified view of an agent token. It feeds telemetry
// and the CLI only; the remote service performs the real verification and
// nothing here influences the authorization decision.
type TokenClaims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Raw       map[string]interface{}
}

// InspectToken parses a JWT without validating its signature or claims.
func InspectToken(tokenString string) (*TokenClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	tc := &TokenClaims{Raw: claims}
	if sub, err := claims.GetSubject(); err == nil {
		tc.Subject = sub
	}
	if iss, err := claims.GetIssuer(); err == nil {
		tc.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		tc.IssuedAt = iat.Time
	}

	return tc, nil
}

// Expired reports whether the token's expiry, when present, has passed.
func (tc *TokenClaims) Expired(now time.Time) bool {
	return !tc.ExpiresAt.IsZero() && now.After(tc.ExpiresAt)
}

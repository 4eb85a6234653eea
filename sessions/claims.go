package sessions

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is an unverified view of a JWT access token. The auth client treats
// tokens as opaque; this exists for callers who want to read what the
// backend put inside.
type Claims struct {
	Subject        string
	TenantID       string
	SignInProvider string
	IssuedAt       time.Time
	ExpiresAt      time.Time
	AuthTime       time.Time
	Raw            map[string]any
}

// ParseClaims decodes the token payload without verifying its signature.
func ParseClaims(token string) (*Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("[sessions ParseClaims] %w", err)
	}

	c := &Claims{Raw: claims}
	c.Subject, _ = claims.GetSubject()
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		c.IssuedAt = iat.UTC()
	}
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		c.ExpiresAt = exp.UTC()
	}
	if authTime, ok := claims["auth_time"].(float64); ok {
		c.AuthTime = time.Unix(int64(authTime), 0).UTC()
	}
	if fb, ok := claims["firebase"].(map[string]any); ok {
		c.TenantID, _ = fb["tenant"].(string)
		c.SignInProvider, _ = fb["sign_in_provider"].(string)
	}
	return c, nil
}

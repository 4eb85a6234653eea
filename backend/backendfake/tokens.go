package backendfake

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/backend"
)

const refreshTokenBytes = 32

// storedRefreshToken is the server-side record behind an opaque refresh token.
type storedRefreshToken struct {
	Token    string
	UserID   string
	TenantID string
	Iat      time.Time
}

// mintIDToken signs an HS256 ID token for the account.
func (b *Backend) mintIDToken(acct *Account, providerID string) (string, time.Time, error) {
	now := b.nowTime()
	exp := now.Add(b.tokenLifetime)

	firebase := map[string]any{"sign_in_provider": providerID}
	if acct.TenantID != "" {
		firebase["tenant"] = acct.TenantID
	}
	claims := jwtlib.MapClaims{
		"iss":       b.issuer,
		"aud":       b.projectID,
		"sub":       acct.ID,
		"user_id":   acct.ID,
		"email":     acct.Email,
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
		"auth_time": now.Unix(),
		"jti":       uuid.New().String(),
		"firebase":  firebase,
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(b.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// verifyIDToken checks signature and expiry and returns the subject.
func (b *Backend) verifyIDToken(token string) (string, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		return b.signingKey, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(b.nowTime),
	)
	if errors.Is(err, jwtlib.ErrTokenExpired) {
		return "", backend.NewError(backend.CodeTokenExpired, "")
	}
	if err != nil || !parsed.Valid {
		return "", backend.NewError(backend.CodeInvalidIDToken, "")
	}
	return parsed.Claims.GetSubject()
}

// createRefreshToken issues a new refresh token, replacing the account's
// previous one.
func (b *Backend) createRefreshToken(acct *Account) (string, error) {
	if existing, ok := b.refreshByUser[acct.ID]; ok {
		delete(b.refreshTokens, existing)
	}

	tokenBytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	b.refreshTokens[tokenStr] = &storedRefreshToken{
		Token:    tokenStr,
		UserID:   acct.ID,
		TenantID: acct.TenantID,
		Iat:      b.nowTime(),
	}
	b.refreshByUser[acct.ID] = tokenStr
	return tokenStr, nil
}

func (b *Backend) refreshExpired(rt *storedRefreshToken) bool {
	return b.refreshLifetime > 0 && b.nowTime().Sub(rt.Iat) > b.refreshLifetime
}

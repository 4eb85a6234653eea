package credentials_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://accounts.example.com"
	testClientID = "client-1"
)

func setupVerifier(t *testing.T) (*rsa.PrivateKey, *oidc.IDTokenVerifier) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return key, oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testClientID})
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	base := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testClientID,
		"sub": "provider-user-1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerifyOAuthIDToken(t *testing.T) {
	key, verifier := setupVerifier(t)
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		raw := signIDToken(t, key, jwt.MapClaims{"nonce": "n-1"})
		cred, err := credentials.VerifyOAuthIDToken(ctx, verifier, "accounts.example.com", raw, "n-1")
		require.NoError(t, err)
		require.Equal(t, "accounts.example.com", cred.ProviderID())
		require.Equal(t, raw, cred.IDToken)
		require.NoError(t, cred.Validate())
	})

	t.Run("hashed nonce", func(t *testing.T) {
		sum := sha256.Sum256([]byte("n-2"))
		raw := signIDToken(t, key, jwt.MapClaims{"nonce": hex.EncodeToString(sum[:])})
		_, err := credentials.VerifyOAuthIDToken(ctx, verifier, "apple.com", raw, "n-2")
		require.NoError(t, err)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		raw := signIDToken(t, key, jwt.MapClaims{"nonce": "other"})
		_, err := credentials.VerifyOAuthIDToken(ctx, verifier, "apple.com", raw, "n-3")
		require.ErrorIs(t, err, credentials.ErrNonceMismatch)
	})

	t.Run("wrong audience", func(t *testing.T) {
		raw := signIDToken(t, key, jwt.MapClaims{"aud": "someone-else"})
		_, err := credentials.VerifyOAuthIDToken(ctx, verifier, "apple.com", raw, "")
		require.ErrorIs(t, err, credentials.ErrInvalidCredential)
	})

	t.Run("expired", func(t *testing.T) {
		raw := signIDToken(t, key, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
		_, err := credentials.VerifyOAuthIDToken(ctx, verifier, "apple.com", raw, "")
		require.ErrorIs(t, err, credentials.ErrInvalidCredential)
	})

	t.Run("missing provider", func(t *testing.T) {
		_, err := credentials.VerifyOAuthIDToken(ctx, verifier, "", "x", "")
		require.ErrorIs(t, err, credentials.ErrMissingProviderID)
	})
}

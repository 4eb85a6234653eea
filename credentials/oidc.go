package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ProviderVerifier discovers an OIDC provider and returns a verifier for ID
// tokens issued to clientID.
func ProviderVerifier(ctx context.Context, issuer, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("[credentials ProviderVerifier] %w", err)
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// VerifyOAuthIDToken verifies a provider ID token locally and returns the
// OAuth credential to sign in with. When rawNonce is set, the token nonce
// must equal it or its hex SHA-256.
func VerifyOAuthIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, providerID, rawIDToken, rawNonce string) (*OAuth, error) {
	if providerID == "" {
		return nil, ErrMissingProviderID
	}
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	if rawNonce != "" {
		hashed := sha256.Sum256([]byte(rawNonce))
		if idToken.Nonce != rawNonce && idToken.Nonce != hex.EncodeToString(hashed[:]) {
			return nil, ErrNonceMismatch
		}
	}

	return &OAuth{Provider: providerID, IDToken: rawIDToken, RawNonce: rawNonce}, nil
}

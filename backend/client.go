package backend

import "context"

// SignInClient performs sign-in and profile RPCs.
type SignInClient interface {
	SignIn(ctx context.Context, req *SignInRequest) (*SignInResponse, error)
	GetAccountInfo(ctx context.Context, req *AccountInfoRequest) (*AccountInfo, error)
}

// TokenRefresher exchanges refresh tokens for new access tokens.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, req *RefreshRequest) (*RefreshResponse, error)
}

// Client is the full backend surface the auth client needs.
type Client interface {
	SignInClient
	TokenRefresher
}

type joined struct {
	SignInClient
	TokenRefresher
}

// Join builds a Client from separate sign-in and refresh implementations,
// e.g. an identity toolkit client and a securetoken.Client.
func Join(signIn SignInClient, refresher TokenRefresher) Client {
	return joined{SignInClient: signIn, TokenRefresher: refresher}
}

package credentials_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/stretchr/testify/require"
)

const validLink = "https://example.page.link/finish?apiKey=key&oobCode=code-1&mode=signIn&lang=en"

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name string
		cred credentials.Credential
		want error
	}{
		{"password ok", credentials.NewEmailPassword("ada@example.com", "pw"), nil},
		{"missing email", credentials.NewEmailPassword("", "pw"), credentials.ErrMissingEmail},
		{"malformed email", credentials.NewEmailPassword("not-an-email", "pw"), credentials.ErrInvalidEmail},
		{"empty password sign-in", credentials.NewEmailPassword("ada@example.com", ""), credentials.ErrWrongPassword},
		{"empty password sign-up", credentials.NewSignUp("ada@example.com", ""), credentials.ErrWeakPassword},
		{"link ok", credentials.NewEmailLink("ada@example.com", validLink), nil},
		{"bad link", credentials.NewEmailLink("ada@example.com", "https://example.com/?mode=signIn"), credentials.ErrInvalidEmailLink},
		{"custom token", &credentials.CustomToken{Token: "t"}, nil},
		{"empty custom token", &credentials.CustomToken{}, credentials.ErrMissingCustomToken},
		{"anonymous", &credentials.Anonymous{}, nil},
		{"oauth ok", &credentials.OAuth{Provider: "google.com", IDToken: "id"}, nil},
		{"oauth no provider", &credentials.OAuth{IDToken: "id"}, credentials.ErrMissingProviderID},
		{"oauth no token", &credentials.OAuth{Provider: "google.com"}, credentials.ErrInvalidCredential},
		{"phone ok", &credentials.Phone{VerificationID: "v", VerificationCode: "123456"}, nil},
		{"phone no id", &credentials.Phone{VerificationCode: "123456"}, credentials.ErrMissingVerificationID},
		{"phone no code", &credentials.Phone{VerificationID: "v"}, credentials.ErrMissingVerificationCode},
		{"phone proof ok", &credentials.Phone{TemporaryProof: "p", PhoneNumber: "+16502530000"}, nil},
		{"phone proof bad number", &credentials.Phone{TemporaryProof: "p", PhoneNumber: "12"}, credentials.ErrInvalidPhoneNumber},
		{"game center incomplete", &credentials.GameCenter{PlayerID: "p"}, credentials.ErrInvalidCredential},
		{"exchange empty", &credentials.TokenExchange{Provider: "oidc.corp"}, credentials.ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cred.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCredentials_Request(t *testing.T) {
	req := credentials.NewSignUp("ada@example.com", "pw").Request()
	require.Equal(t, backend.MethodSignUp, req.Method)

	req = credentials.NewEmailLink("ada@example.com", validLink).Request()
	require.Equal(t, backend.MethodEmailLinkSignIn, req.Method)
	require.Equal(t, "code-1", req.OOBCode)

	req = (&credentials.OAuth{Provider: "google.com", IDToken: "id", RawNonce: "n"}).Request()
	require.Equal(t, backend.MethodVerifyAssertion, req.Method)
	require.Equal(t, &backend.Assertion{ProviderID: "google.com", IDToken: "id", RawNonce: "n"}, req.Assertion)

	req = (&credentials.Phone{TemporaryProof: "p", PhoneNumber: "+1 650-253-0000"}).Request()
	require.Equal(t, "+16502530000", req.Phone.PhoneNumber)
}

func TestIsSignInLink(t *testing.T) {
	require.True(t, credentials.IsSignInLink(validLink))
	require.False(t, credentials.IsSignInLink("https://example.com/?oobCode=x&mode=resetPassword"))
	require.False(t, credentials.IsSignInLink("https://example.com/?mode=signIn"))
	require.False(t, credentials.IsSignInLink("https://example.com/?link="+
		"https%3A%2F%2Fexample.com%2F%3FoobCode%3Dx%26mode%3DsignIn"))
	require.False(t, credentials.IsSignInLink("::not a url"))
}

func TestNormalizePhoneNumber(t *testing.T) {
	got, err := credentials.NormalizePhoneNumber("(650) 253-0000", "US")
	require.NoError(t, err)
	require.Equal(t, "+16502530000", got)

	_, err = credentials.NormalizePhoneNumber("", "US")
	require.ErrorIs(t, err, credentials.ErrInvalidPhoneNumber)
}

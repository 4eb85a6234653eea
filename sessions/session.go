package sessions

import (
	"time"

	"github.com/jrsteele09/go-auth-client/internal/utils"
	"golang.org/x/oauth2"
)

// Session is the signed-in identity's token bundle and profile: "the user".
// A Session handed out by the auth client is a copy; mutating it has no
// effect on the client's state.
type Session struct {
	UID               string    // Backend identity ID (local ID)
	AccessToken       string    // Opaque access (ID) token, also the refresh fingerprint
	AccessTokenExpiry time.Time // When AccessToken stops being accepted
	RefreshToken      string    // Opaque token used to mint new access tokens
	TenantID          *string   // Tenant the identity belongs to, nil for the project-level pool
	Anonymous         bool      // Created by anonymous sign-in
	APIKey            string    // API key of the app the session was created for

	Email         string
	DisplayName   string
	PhotoURL      string
	PhoneNumber   string
	EmailVerified bool
	ProviderData  []ProviderInfo
	Metadata      Metadata
}

// ProviderInfo is one linked identity provider.
type ProviderInfo struct {
	ProviderID  string
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	PhoneNumber string
}

// Metadata carries account timestamps reported by the backend.
type Metadata struct {
	CreatedAt    time.Time
	LastSignInAt time.Time
}

// Clone returns a deep copy, nil for nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.TenantID != nil {
		c.TenantID = utils.Ptr(*s.TenantID)
	}
	if s.ProviderData != nil {
		c.ProviderData = append([]ProviderInfo(nil), s.ProviderData...)
	}
	return &c
}

// Normalize returns a copy in the exact form a stored record decodes to:
// times at millisecond precision in UTC and no empty provider list.
func (s *Session) Normalize() *Session {
	if s == nil {
		return nil
	}
	c := s.Clone()
	c.AccessTokenExpiry = fromMillis(toMillis(c.AccessTokenExpiry))
	c.Metadata.CreatedAt = fromMillis(toMillis(c.Metadata.CreatedAt))
	c.Metadata.LastSignInAt = fromMillis(toMillis(c.Metadata.LastSignInAt))
	if len(c.ProviderData) == 0 {
		c.ProviderData = nil
	}
	return c
}

// Fingerprint identifies the access token a refresh was scheduled against.
func (s *Session) Fingerprint() string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}

// GetUID is nil-safe.
func (s *Session) GetUID() string {
	if s == nil {
		return ""
	}
	return s.UID
}

// ExpiresWithin reports whether the access token expires before now+d.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !now.Add(d).Before(s.AccessTokenExpiry)
}

// WithTokens returns a copy carrying a freshly issued token pair.
func (s *Session) WithTokens(accessToken string, expiry time.Time, refreshToken string) *Session {
	c := s.Clone()
	c.AccessToken = accessToken
	c.AccessTokenExpiry = expiry
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	return c
}

// OAuth2Token exposes the session tokens as an oauth2.Token for HTTP clients.
func (s *Session) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.AccessTokenExpiry,
	}
}

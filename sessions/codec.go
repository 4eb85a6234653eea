package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt is returned when a stored session record cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

const recordVersion = 1

// record is the persisted form of a Session. Keys are short to keep the
// blob small; times are Unix milliseconds.
type record struct {
	Version       int              `json:"v"`
	UID           string           `json:"uid"`
	AccessToken   string           `json:"at"`
	ExpiresAt     int64            `json:"exp"`
	RefreshToken  string           `json:"rt"`
	TenantID      *string          `json:"tid,omitempty"`
	Anonymous     bool             `json:"anon,omitempty"`
	APIKey        string           `json:"key,omitempty"`
	Email         string           `json:"email,omitempty"`
	DisplayName   string           `json:"name,omitempty"`
	PhotoURL      string           `json:"photo,omitempty"`
	PhoneNumber   string           `json:"phone,omitempty"`
	EmailVerified bool             `json:"ev,omitempty"`
	Providers     []providerRecord `json:"pd,omitempty"`
	CreatedAt     int64            `json:"ca,omitempty"`
	LastSignInAt  int64            `json:"ls,omitempty"`
}

type providerRecord struct {
	ProviderID  string `json:"p"`
	UID         string `json:"uid,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
	PhotoURL    string `json:"photo,omitempty"`
	PhoneNumber string `json:"phone,omitempty"`
}

// Encode serializes a session for storage.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("[sessions Encode] nil session")
	}
	r := record{
		Version:       recordVersion,
		UID:           s.UID,
		AccessToken:   s.AccessToken,
		ExpiresAt:     toMillis(s.AccessTokenExpiry),
		RefreshToken:  s.RefreshToken,
		TenantID:      s.TenantID,
		Anonymous:     s.Anonymous,
		APIKey:        s.APIKey,
		Email:         s.Email,
		DisplayName:   s.DisplayName,
		PhotoURL:      s.PhotoURL,
		PhoneNumber:   s.PhoneNumber,
		EmailVerified: s.EmailVerified,
		CreatedAt:     toMillis(s.Metadata.CreatedAt),
		LastSignInAt:  toMillis(s.Metadata.LastSignInAt),
	}
	for _, p := range s.ProviderData {
		r.Providers = append(r.Providers, providerRecord(p))
	}
	return json.Marshal(r)
}

// Decode parses a stored session. Any malformed input yields ErrCorrupt.
func Decode(data []byte) (*Session, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if r.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, r.Version)
	}
	if r.UID == "" || r.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrCorrupt)
	}
	s := &Session{
		UID:               r.UID,
		AccessToken:       r.AccessToken,
		AccessTokenExpiry: fromMillis(r.ExpiresAt),
		RefreshToken:      r.RefreshToken,
		TenantID:          r.TenantID,
		Anonymous:         r.Anonymous,
		APIKey:            r.APIKey,
		Email:             r.Email,
		DisplayName:       r.DisplayName,
		PhotoURL:          r.PhotoURL,
		PhoneNumber:       r.PhoneNumber,
		EmailVerified:     r.EmailVerified,
		Metadata: Metadata{
			CreatedAt:    fromMillis(r.CreatedAt),
			LastSignInAt: fromMillis(r.LastSignInAt),
		},
	}
	for _, p := range r.Providers {
		s.ProviderData = append(s.ProviderData, ProviderInfo(p))
	}
	return s, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

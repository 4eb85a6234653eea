package backendfake

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/sessions"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// Account is a user record held by the fake backend.
type Account struct {
	ID            string // Backend user ID (local ID)
	TenantID      string // Tenant the account belongs to, empty for the project pool
	Email         string
	PasswordHash  string // bcrypt hash, empty for accounts without a password
	DisplayName   string
	PhotoURL      string
	PhoneNumber   string
	EmailVerified bool
	Disabled      bool // Disabled accounts cannot sign in or refresh
	Anonymous     bool
	Providers     []sessions.ProviderInfo
	CreatedAt     time.Time
	LastLoginAt   time.Time
}

func (a *Account) info() *backend.AccountInfo {
	return &backend.AccountInfo{
		LocalID:       a.ID,
		Email:         a.Email,
		EmailVerified: a.EmailVerified,
		DisplayName:   a.DisplayName,
		PhotoURL:      a.PhotoURL,
		PhoneNumber:   a.PhoneNumber,
		Disabled:      a.Disabled,
		Providers:     append([]sessions.ProviderInfo(nil), a.Providers...),
		CreatedAt:     a.CreatedAt,
		LastLoginAt:   a.LastLoginAt,
	}
}

func (a *Account) hasProvider(providerID string) bool {
	for _, p := range a.Providers {
		if p.ProviderID == providerID {
			return true
		}
	}
	return false
}

// ValidatePasswordStrength applies the backend's minimum password rule.
func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return backend.NewError(backend.CodeWeakPassword,
			fmt.Sprintf("Password should be at least %d characters", minPasswordLength))
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

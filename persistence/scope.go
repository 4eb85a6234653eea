package persistence

import (
	"fmt"

	"github.com/jrsteele09/go-auth-client/keychain"
)

const (
	sharedService       = "auth_stored_user"
	defaultServiceFmt   = "auth_%s"
	defaultAccountFmt   = "%s_current_user"
	sharedAccountFormat = "%s_%s"
)

// Scope selects where the session record lives. The zero value is the
// app-private default scope.
type Scope struct {
	AccessGroup        string
	ShareAcrossDevices bool
}

// Default returns the app-private scope.
func Default() Scope {
	return Scope{}
}

// Shared returns a scope in the given access group, optionally synchronized
// across the user's devices. An empty group is still the default scope.
func Shared(group string, shareAcrossDevices bool) Scope {
	if group == "" {
		return Default()
	}
	return Scope{AccessGroup: group, ShareAcrossDevices: shareAcrossDevices}
}

func (s Scope) IsDefault() bool {
	return s.AccessGroup == ""
}

func (s Scope) String() string {
	if s.IsDefault() {
		return "default"
	}
	return fmt.Sprintf("shared(%s, sync=%t)", s.AccessGroup, s.ShareAcrossDevices)
}

// Identity is the app identity key derivation depends on.
type Identity struct {
	AppID     string
	APIKey    string
	ProjectID string
}

// KeyFor derives the keychain key of the session record for a scope.
func (id Identity) KeyFor(scope Scope) keychain.Key {
	if scope.IsDefault() {
		return keychain.Key{
			Service: fmt.Sprintf(defaultServiceFmt, id.AppID),
			Account: fmt.Sprintf(defaultAccountFmt, id.AppID),
		}
	}
	return keychain.Key{
		Service:        sharedService,
		Account:        fmt.Sprintf(sharedAccountFormat, id.ProjectID, id.APIKey),
		AccessGroup:    scope.AccessGroup,
		Synchronizable: scope.ShareAcrossDevices,
	}
}

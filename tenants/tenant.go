package tenants

import (
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-client/internal/utils"
)

// ErrMismatch is returned when a session's tenant conflicts with the tenant
// the client is configured for.
var ErrMismatch = errors.New("tenant id mismatch")

// Check enforces the tenant-consistency rule: a session may be installed
// unless both the configured tenant and the session tenant are set and differ.
func Check(configured, session *string) error {
	if configured == nil || session == nil || utils.EqualPtr(configured, session) {
		return nil
	}
	return fmt.Errorf("%w: configured %q, session %q", ErrMismatch, *configured, *session)
}

// Normalize maps an empty tenant ID to nil, the project-level pool.
func Normalize(tenantID string) *string {
	return utils.PtrOrNil(tenantID)
}

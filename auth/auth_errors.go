package auth

import (
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-client/credentials"
	errs "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/serial"
)

var (
	ErrNoCurrentUser                        = errors.New("no user is signed in")
	ErrNilUser                              = errors.New("user must not be nil")
	ErrInvalidUserToken                     = errors.New("user was created for a different app")
	ErrUserChanged                          = errors.New("signed-in user changed during the operation")
	ErrAccountExistsWithDifferentCredential = errors.New("account exists with different credential")
	ErrCapabilityUnavailable                = errs.Wrapf(errs.ErrCapability, "auth")
	ErrClosed                               = serial.ErrClosed
)

// AccountExistsError is returned when a federated sign-in finds an existing
// account with the same email under another provider. Sign in with that
// provider, then link Credential.
type AccountExistsError struct {
	Email      string
	Credential *credentials.OAuth
}

func (e *AccountExistsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAccountExistsWithDifferentCredential, e.Email)
}

func (e *AccountExistsError) Unwrap() error {
	return ErrAccountExistsWithDifferentCredential
}

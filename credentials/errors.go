package credentials

import "errors"

// Local validation failures. These are detected before any request is sent
// and are never retried.
var (
	ErrMissingEmail            = errors.New("missing email")
	ErrInvalidEmail            = errors.New("invalid email")
	ErrWrongPassword           = errors.New("wrong password")
	ErrWeakPassword            = errors.New("weak password")
	ErrInvalidEmailLink        = errors.New("invalid email sign-in link")
	ErrMissingCustomToken      = errors.New("missing custom token")
	ErrMissingVerificationID   = errors.New("missing verification id")
	ErrMissingVerificationCode = errors.New("missing verification code")
	ErrInvalidPhoneNumber      = errors.New("invalid phone number")
	ErrMissingProviderID       = errors.New("missing provider id")
	ErrInvalidCredential       = errors.New("invalid credential")
	ErrNonceMismatch           = errors.New("id token nonce mismatch")
)

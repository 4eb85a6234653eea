package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable backend error code.
type Code string

const (
	CodeEmailNotFound         Code = "EMAIL_NOT_FOUND"
	CodeEmailExists           Code = "EMAIL_EXISTS"
	CodeInvalidPassword       Code = "INVALID_PASSWORD"
	CodeWeakPassword          Code = "WEAK_PASSWORD"
	CodeInvalidEmail          Code = "INVALID_EMAIL"
	CodeInvalidOOBCode        Code = "INVALID_OOB_CODE"
	CodeInvalidCustomToken    Code = "INVALID_CUSTOM_TOKEN"
	CodeInvalidIDPResponse    Code = "INVALID_IDP_RESPONSE"
	CodeInvalidCode           Code = "INVALID_CODE"
	CodeInvalidSessionInfo    Code = "INVALID_SESSION_INFO"
	CodeInvalidIDToken        Code = "INVALID_ID_TOKEN"
	CodeUserDisabled          Code = "USER_DISABLED"
	CodeUserNotFound          Code = "USER_NOT_FOUND"
	CodeTokenExpired          Code = "TOKEN_EXPIRED"
	CodeInvalidRefreshToken   Code = "INVALID_REFRESH_TOKEN"
	CodeOperationNotAllowed   Code = "OPERATION_NOT_ALLOWED"
	CodeTenantIDMismatch      Code = "TENANT_ID_MISMATCH"
	CodeTooManyAttempts       Code = "TOO_MANY_ATTEMPTS_TRY_LATER"
	CodeNetworkRequestFailed  Code = "NETWORK_REQUEST_FAILED"
	CodeInternalError         Code = "INTERNAL_ERROR"
	CodeMissingRecaptchaToken Code = "MISSING_RECAPTCHA_TOKEN"
)

// Error is an error reported by the backend.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf returns the backend code in err's chain, empty when there is none.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// HasCode reports whether err carries one of codes.
func HasCode(err error, codes ...Code) bool {
	code := CodeOf(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsTerminalRefreshError reports whether a refresh failure means the session
// can never be refreshed again and must be signed out.
func IsTerminalRefreshError(err error) bool {
	return HasCode(err, CodeUserDisabled, CodeUserNotFound, CodeTokenExpired, CodeInvalidRefreshToken)
}

// IsMissingVerificationArtifact reports whether err is the internal error the
// backend returns when a reCAPTCHA token was required but not sent.
func IsMissingVerificationArtifact(err error) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Code == CodeInternalError && strings.Contains(be.Message, string(CodeMissingRecaptchaToken))
}

// ParseMessage splits a backend message of the form "CODE : detail".
func ParseMessage(msg string) *Error {
	code, detail, _ := strings.Cut(msg, ":")
	return &Error{Code: Code(strings.TrimSpace(code)), Message: strings.TrimSpace(detail)}
}

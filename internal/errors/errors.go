package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the auth client packages
var (
	// Capability errors
	ErrCapability = errors.New("capability not available")

	// Lifecycle errors
	ErrClosed = errors.New("closed")

	// Lookup errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

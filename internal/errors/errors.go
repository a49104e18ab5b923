package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the stores, the model adapter and the engine
var (
	ErrInvalidScope       = errors.New("invalid scope")
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")
	ErrInvalidRequest     = errors.New("invalid request")

	// ErrClientNotResolved is returned when a token or code is persisted for an unknown client.
	ErrClientNotResolved = errors.New("client could not be resolved")

	// Storage errors
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate record")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

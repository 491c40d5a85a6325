package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session core
var (
	// Token errors
	ErrMissingTokens  = errors.New("missing tokens")
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")

	// Session errors
	ErrSessionExpired       = errors.New("session expired")
	ErrMissingSessionData   = errors.New("missing session data")
	ErrSessionTornDown      = errors.New("session torn down")
	ErrInsufficientSnapshot = errors.New("insufficient snapshot data")

	// Storage errors
	ErrKeyNotFound        = errors.New("key not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidKey         = errors.New("invalid storage key")

	// Backend errors
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Broadcast errors
	ErrChannelClosed = errors.New("broadcast channel closed")
	ErrChannelFull   = errors.New("broadcast channel full")
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

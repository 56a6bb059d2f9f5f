package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers every authentication failure: unknown email,
	// wrong password, inactive account at login, and bad or expired tokens.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrPasswordTooLong    = errors.New("password exceeds 72 bytes")

	// ErrSelfModification guards admins against demoting or deactivating themselves.
	ErrSelfModification = errors.New("cannot change own role or status")

	// ErrUnavailable marks a transient infrastructure failure (network, pool
	// exhaustion, server selection). Only errors wrapping it are retried.
	ErrUnavailable = errors.New("store unavailable")
)

// ErrorKind classifies a ServiceError.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindUnavailable ErrorKind = "unavailable"
	KindInternal    ErrorKind = "internal"
)

// ServiceError reports an infrastructure failure behind a use case.
// A KindTimeout error means the outcome of Op is unknown, not failed.
type ServiceError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a ServiceError of kind timeout.
func IsTimeout(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == KindTimeout
}

package database

import "errors"

var (
	// ErrNotReady means the pool was never opened or has been closed.
	ErrNotReady = errors.New("database not ready")
	// ErrConnection means the engine could not be reached in time.
	ErrConnection = errors.New("database connection failed")
	// ErrConstraint covers unique, foreign key, check and ownership violations.
	ErrConstraint = errors.New("constraint violation")
	ErrNotFound   = errors.New("not found")
)

// IsUnavailable reports whether err should be shown to the user as a transient
// "try again shortly" condition.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrConnection)
}

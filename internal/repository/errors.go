package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when trying to create a user with an existing email
	ErrDuplicateEmail = errors.New("user with this email already exists")

	// ErrDuplicateToken is returned when trying to create a session with an existing hash
	ErrDuplicateToken = errors.New("token with this hash already exists")

	// ErrSessionRotated is returned when a conditional revoke finds the row
	// already revoked, i.e. a concurrent rotation won the race
	ErrSessionRotated = errors.New("session already rotated")

	// ErrTokenConsumed is returned when a one-time token was cleared by a
	// concurrent consumption between lookup and update
	ErrTokenConsumed = errors.New("one-time token already consumed")
)

package service

import "errors"

// Business outcomes of the credential lifecycle. These are deliberate
// results the caller branches on, not infrastructure faults; anything else
// coming out of the service is a wrapped store failure.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are intentionally indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountDeactivated is returned when the account's active flag is off
	ErrAccountDeactivated = errors.New("account is deactivated")

	// ErrAlreadyExists is returned when registering an email that is taken,
	// in any casing
	ErrAlreadyExists = errors.New("account with this email already exists")

	// ErrInvalidToken is returned when a refresh secret or one-time token
	// matches no record
	ErrInvalidToken = errors.New("token is invalid")

	// ErrTokenExpired is returned when a token is found but past its expiry
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenReuseDetected is returned when an already-rotated refresh
	// secret is presented again. By the time the caller sees it, every
	// session of the affected user has been revoked.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")

	// ErrIncorrectPassword is returned by the change-password and
	// delete-account flows when the current password does not verify
	ErrIncorrectPassword = errors.New("incorrect password")

	// ErrWeakPassword is returned when a new password fails the policy
	ErrWeakPassword = errors.New("password must be at least 8 characters long and contain uppercase, lowercase, and number")
)

package notify

import "context"

// Notifier delivers the account lifecycle emails. Implementations may fail
// independently of the state transition that triggered them; callers treat
// delivery as best-effort.
type Notifier interface {
	// SendVerification sends an email verification link for the token.
	SendVerification(ctx context.Context, email, token string) error

	// SendReset sends a password reset link for the token.
	SendReset(ctx context.Context, email, token string) error
}

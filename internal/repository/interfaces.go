package repository

import (
	"context"
	"time"

	"github.com/hobbystash/account-service/internal/domain"
)

// UserRepository defines the user-side queries the credential core needs.
// Methods that pair a credential change with a side effect (consume token,
// revoke sessions) are atomic: they run in one database transaction.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*domain.User, error)
	GetByResetToken(ctx context.Context, token string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID string) error
	SetVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error

	// ConsumeVerificationToken marks the email verified and clears the token
	// pair, conditional on the token still being set. ErrTokenConsumed if a
	// concurrent consumption got there first.
	ConsumeVerificationToken(ctx context.Context, userID, token string) error

	// ResetPassword replaces the password hash, clears the reset token pair
	// and revokes every session of the user, all in one transaction.
	ResetPassword(ctx context.Context, userID, token, newHash string) error

	// UpdatePassword replaces the password hash and revokes every session of
	// the user in one transaction.
	UpdatePassword(ctx context.Context, userID, newHash string) error

	Delete(ctx context.Context, userID string) error
}

// SessionRepository defines the refresh-session queries. Sessions are
// revoked, not deleted, so a rotated secret presented again is
// distinguishable from one that never existed.
type SessionRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	ListActiveByUserID(ctx context.Context, userID string) ([]*domain.RefreshToken, error)

	// Revoke marks the matching active session revoked. Idempotent: revoking
	// a missing or already revoked session reports false, nil.
	Revoke(ctx context.Context, tokenHash string) (bool, error)

	RevokeAllForUser(ctx context.Context, userID string) error

	// Rotate revokes the presented session and inserts its successor in one
	// transaction. The revoke is conditional on revoked_at being null; when a
	// concurrent rotation already claimed the row, ErrSessionRotated.
	Rotate(ctx context.Context, oldTokenHash string, next *domain.RefreshToken) error

	DeleteExpired(ctx context.Context) error
}

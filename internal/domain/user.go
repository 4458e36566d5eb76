package domain

import "time"

// User roles
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents an account in the system. Email is stored lowercased and
// is unique case-insensitively. The verification and reset token pairs are
// single-use: consuming one clears both fields in the same transaction that
// applies its effect.
type User struct {
	ID                string     `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	DisplayName       string     `json:"display_name" db:"display_name"`
	Role              string     `json:"role" db:"role"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	IsEmailVerified   bool       `json:"is_email_verified" db:"is_email_verified"`
	VerificationToken *string    `json:"-" db:"verification_token"`
	VerificationExp   *time.Time `json:"-" db:"verification_expires_at"`
	ResetToken        *string    `json:"-" db:"reset_token"`
	ResetExp          *time.Time `json:"-" db:"reset_expires_at"`
	LastLoginAt       *time.Time `json:"last_login_at" db:"last_login_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// RefreshToken represents one issued refresh session. Only the SHA-256 hash
// of the opaque secret is stored; possession of the plaintext is what it
// takes to find the row. A revoked or rotated row keeps existing so that a
// later presentation of its secret is distinguishable from garbage.
// Superseded is set only by rotation: a superseded row presented again means
// replay, a merely revoked one means a logged-out client retrying.
type RefreshToken struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	TokenHash  string     `json:"-" db:"token_hash"`
	UserAgent  *string    `json:"user_agent" db:"user_agent"`
	IPAddress  *string    `json:"ip_address" db:"ip_address"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at" db:"revoked_at"`
	Superseded bool       `json:"-" db:"superseded"`
}

// IsActive reports whether the session is still usable at the given time.
// A session expiring exactly at now is already expired.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

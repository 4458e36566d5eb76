package domain

import "time"

// TokenClaims represents JWT access token claims
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// TokenPair represents a freshly issued access token plus the opaque
// refresh secret backing the new session.
type TokenPair struct {
	AccessToken   string `json:"access_token"`
	RefreshSecret string `json:"-"`
	TokenType     string `json:"token_type"`
	ExpiresIn     int    `json:"expires_in"`
}

// IsExpired checks if the token is expired
func (tc TokenClaims) IsExpired() bool {
	return time.Now().Unix() > tc.Exp
}

// SessionInfo is the caller-facing summary of one active refresh session.
type SessionInfo struct {
	ID        string    `json:"id"`
	UserAgent *string   `json:"user_agent"`
	IPAddress *string   `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

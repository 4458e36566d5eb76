package service

import (
	"time"

	"github.com/hobbystash/account-service/internal/domain"
	"github.com/hobbystash/account-service/internal/dto"
)

// AuthResult bundles the outcome of login and refresh: the response body
// for the caller plus the refresh secret the transport layer moves through
// its own channel (an httpOnly cookie scoped to the refresh path).
type AuthResult struct {
	AuthResponse  *dto.AuthResponse
	RefreshSecret string
	RefreshTTL    time.Duration
}

func newAuthResult(pair *domain.TokenPair, user *domain.User, refreshTTL time.Duration) *AuthResult {
	return &AuthResult{
		AuthResponse: &dto.AuthResponse{
			AccessToken: pair.AccessToken,
			TokenType:   pair.TokenType,
			ExpiresIn:   pair.ExpiresIn,
			User: dto.UserInfo{
				ID:          user.ID,
				Email:       user.Email,
				DisplayName: user.DisplayName,
				Role:        user.Role,
			},
		},
		RefreshSecret: pair.RefreshSecret,
		RefreshTTL:    refreshTTL,
	}
}

package service

import (
	"context"

	"github.com/hobbystash/account-service/internal/domain"
	"github.com/hobbystash/account-service/internal/dto"
)

// AuthService defines the credential and session lifecycle operations
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) error
	Login(ctx context.Context, req *dto.LoginRequest, userAgent, ipAddress *string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshSecret string, userAgent, ipAddress *string) (*AuthResult, error)
	Logout(ctx context.Context, userID, refreshSecret string) error
	LogoutAll(ctx context.Context, userID string) error
	ForgotPassword(ctx context.Context, email string)
	ResendVerification(ctx context.Context, email string)
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	DeleteAccount(ctx context.Context, userID, password string) error
	ListSessions(ctx context.Context, userID, refreshSecret string) ([]domain.SessionInfo, error)
	GetUser(ctx context.Context, userID string) (*dto.UserResponse, error)
	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)
}

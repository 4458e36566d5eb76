package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hobbystash/account-service/internal/domain"
	"github.com/hobbystash/account-service/internal/dto"
	"github.com/hobbystash/account-service/internal/mailqueue"
	"github.com/hobbystash/account-service/internal/repository"
	"github.com/hobbystash/account-service/internal/utils"
	"github.com/hobbystash/account-service/pkg/observability"
	"go.uber.org/zap"
)

// authService implements AuthService interface
type authService struct {
	userRepo   repository.UserRepository
	sessions   *SessionRegistry
	tokens     *OneTimeTokenFlow
	jwtManager *utils.JWTManager
	bcryptCost int
	metrics    *observability.AuthMetrics
	logger     *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repository.UserRepository,
	sessions *SessionRegistry,
	tokens *OneTimeTokenFlow,
	jwtManager *utils.JWTManager,
	bcryptCost int,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		sessions:   sessions,
		tokens:     tokens,
		jwtManager: jwtManager,
		bcryptCost: bcryptCost,
		metrics:    metrics,
		logger:     logger,
	}
}

// Register creates an unverified account and queues the verification
// email. There is deliberately no auto-login: the caller gets a generic
// success message and a session only after presenting credentials.
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) error {
	email := utils.SanitizeEmail(req.Email)

	if !utils.ValidateEmail(email) {
		return fmt.Errorf("invalid email format")
	}

	if !utils.ValidatePassword(req.Password) {
		return ErrWeakPassword
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return ErrAlreadyExists
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check account existence: %w", err)
	}

	passwordHash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	verificationToken, verificationExp, err := s.tokens.NewVerificationToken()
	if err != nil {
		return err
	}

	user := &domain.User{
		Email:             email,
		PasswordHash:      passwordHash,
		DisplayName:       req.DisplayName,
		Role:              domain.RoleUser,
		IsActive:          true,
		IsEmailVerified:   false,
		VerificationToken: &verificationToken,
		VerificationExp:   &verificationExp,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// Lost a race with a concurrent registration for the same email.
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	s.metrics.Registrations.Add(ctx, 1)
	s.tokens.Enqueue(ctx, mailqueue.KindVerification, user.Email, verificationToken)

	return nil
}

// Login authenticates a user and issues a fresh session. Unknown email and
// wrong password produce the same error.
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, userAgent, ipAddress *string) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.LoginFailures.Add(ctx, 1)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		s.metrics.LoginFailures.Add(ctx, 1)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.metrics.LoginFailures.Add(ctx, 1)
		return nil, ErrAccountDeactivated
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		// Bookkeeping only, the login itself stands.
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	pair, err := s.sessions.Issue(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	s.metrics.Logins.Add(ctx, 1)

	return newAuthResult(pair, user, s.sessions.TTL()), nil
}

// Refresh exchanges a refresh secret for a fresh pair. On reuse detection
// the caller must treat the result as an authentication failure, not an
// expired-token retry: every session of the user is already gone.
func (s *authService) Refresh(ctx context.Context, refreshSecret string, userAgent, ipAddress *string) (*AuthResult, error) {
	pair, user, err := s.sessions.Rotate(ctx, refreshSecret, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}

	return newAuthResult(pair, user, s.sessions.TTL()), nil
}

// Logout revokes the presented session. Always succeeds from the caller's
// perspective, including for secrets that are unknown or already revoked.
func (s *authService) Logout(ctx context.Context, userID, refreshSecret string) error {
	return s.sessions.Revoke(ctx, userID, refreshSecret)
}

// LogoutAll revokes every session of the user
func (s *authService) LogoutAll(ctx context.Context, userID string) error {
	return s.sessions.RevokeAll(ctx, userID)
}

// ForgotPassword queues a reset email if the address maps to an account.
// No error, no return value: the transport answer is the same generic
// message whether or not the account exists.
func (s *authService) ForgotPassword(ctx context.Context, email string) {
	s.tokens.RequestReset(ctx, utils.SanitizeEmail(email))
}

// ResendVerification queues a fresh verification email with the same
// enumeration-safe contract as ForgotPassword.
func (s *authService) ResendVerification(ctx context.Context, email string) {
	s.tokens.RequestVerification(ctx, utils.SanitizeEmail(email))
}

// ResetPassword consumes a reset token and sets the new password. All
// existing sessions of the user are revoked in the same transaction.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !utils.ValidatePassword(newPassword) {
		return ErrWeakPassword
	}

	newHash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.tokens.ConsumeReset(ctx, token, newHash)
	if err != nil {
		return err
	}

	s.logger.Info("password reset completed", zap.String("user_id", user.ID))
	return nil
}

// VerifyEmail consumes a verification token. No session side effect.
func (s *authService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.tokens.ConsumeVerification(ctx, token)
	if err != nil {
		return err
	}

	s.logger.Info("email verified", zap.String("user_id", user.ID))
	return nil
}

// ChangePassword re-verifies the current password, then replaces the hash
// and revokes all existing sessions as one atomic unit.
func (s *authService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !utils.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return ErrIncorrectPassword
	}

	if !utils.ValidatePassword(newPassword) {
		return ErrWeakPassword
	}

	newHash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

// DeleteAccount re-verifies the password, then deletes the user record.
// Session rows go with it via the store's cascade.
func (s *authService) DeleteAccount(ctx context.Context, userID, password string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		return ErrIncorrectPassword
	}

	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	s.logger.Info("account deleted", zap.String("user_id", userID))
	return nil
}

// ListSessions returns the user's active sessions, flagging the one backed
// by the presented refresh secret as current.
func (s *authService) ListSessions(ctx context.Context, userID, refreshSecret string) ([]domain.SessionInfo, error) {
	return s.sessions.ListActive(ctx, userID, refreshSecret)
}

// GetUser gets user information
func (s *authService) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	response := &dto.UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		DisplayName:     user.DisplayName,
		Role:            user.Role,
		CreatedAt:       user.CreatedAt.Format(time.RFC3339),
		IsEmailVerified: user.IsEmailVerified,
	}

	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}

	return response, nil
}

// ValidateToken validates an access token. Access tokens are stateless:
// signature and expiry are the whole check.
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error) {
	claims, err := s.jwtManager.ValidateAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}

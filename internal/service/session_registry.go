package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hobbystash/account-service/internal/domain"
	"github.com/hobbystash/account-service/internal/repository"
	"github.com/hobbystash/account-service/internal/utils"
	"github.com/hobbystash/account-service/pkg/observability"
	"go.uber.org/zap"
)

// SessionRegistry owns the refresh session table: it issues, rotates and
// revokes sessions and is the place where refresh-secret reuse is detected.
type SessionRegistry struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	jwtManager  *utils.JWTManager
	ttl         time.Duration
	metrics     *observability.AuthMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionRegistry creates a session registry. ttl is the refresh session
// lifetime (callers resolve it with config.ParseTTL).
func NewSessionRegistry(
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	jwtManager *utils.JWTManager,
	ttl time.Duration,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) *SessionRegistry {
	return &SessionRegistry{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		jwtManager:  jwtManager,
		ttl:         ttl,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// TTL returns the refresh session lifetime.
func (r *SessionRegistry) TTL() time.Duration {
	return r.ttl
}

// Issue creates a fresh session for the user and returns the access token
// plus the plaintext refresh secret. The secret is never stored; its
// SHA-256 hash is the row's lookup key.
func (r *SessionRegistry) Issue(ctx context.Context, user *domain.User, userAgent, ipAddress *string) (*domain.TokenPair, error) {
	accessToken, err := r.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	secret, err := utils.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh secret: %w", err)
	}

	session := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(secret),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: r.now().Add(r.ttl),
	}

	if err := r.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:   accessToken,
		RefreshSecret: secret,
		TokenType:     "Bearer",
		ExpiresIn:     r.jwtManager.GetAccessTokenExpiry(),
	}, nil
}

// Rotate exchanges a presented refresh secret for a fresh token pair. The
// presented session is revoked and a successor created atomically, so the
// old secret is permanently unusable even if captured afterward.
//
// Presenting a secret whose session was already superseded by rotation
// means someone is replaying it. The response is to revoke every session
// of that user.
func (r *SessionRegistry) Rotate(ctx context.Context, presentedSecret string, userAgent, ipAddress *string) (*domain.TokenPair, *domain.User, error) {
	tokenHash := utils.HashToken(presentedSecret)

	session, err := r.sessionRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.RevokedAt != nil {
		if session.Superseded {
			// The secret was rotated and handed back, yet here it is again:
			// someone other than the successor's holder is replaying it.
			return nil, nil, r.onReuse(ctx, session.UserID)
		}
		// Revoked by an explicit logout. A client retrying after its own
		// logout is not an attack.
		return nil, nil, ErrInvalidToken
	}

	if !r.now().Before(session.ExpiresAt) {
		return nil, nil, ErrTokenExpired
	}

	user, err := r.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.IsActive {
		return nil, nil, ErrAccountDeactivated
	}

	accessToken, err := r.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	secret, err := utils.NewOpaqueToken()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate refresh secret: %w", err)
	}

	next := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(secret),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: r.now().Add(r.ttl),
	}

	err = r.sessionRepo.Rotate(ctx, tokenHash, next)
	if err != nil {
		if errors.Is(err, repository.ErrSessionRotated) {
			// A concurrent rotation claimed the row between our read and the
			// conditional revoke. The loser must not silently succeed or
			// silently fail; it takes the reuse path.
			return nil, nil, r.onReuse(ctx, session.UserID)
		}
		return nil, nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	r.metrics.Rotations.Add(ctx, 1)

	pair := &domain.TokenPair{
		AccessToken:   accessToken,
		RefreshSecret: secret,
		TokenType:     "Bearer",
		ExpiresIn:     r.jwtManager.GetAccessTokenExpiry(),
	}

	return pair, user, nil
}

func (r *SessionRegistry) onReuse(ctx context.Context, userID string) error {
	r.metrics.ReuseDetections.Add(ctx, 1)
	r.logger.Warn("refresh token reuse detected, revoking all sessions",
		zap.String("user_id", userID),
	)

	if err := r.sessionRepo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions after reuse: %w", err)
	}

	return ErrTokenReuseDetected
}

// Revoke marks the user's session matching the presented secret revoked.
// Idempotent: nothing matching, wrong owner, or already revoked is a no-op.
func (r *SessionRegistry) Revoke(ctx context.Context, userID, presentedSecret string) error {
	if presentedSecret == "" {
		return nil
	}

	tokenHash := utils.HashToken(presentedSecret)

	session, err := r.sessionRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get session: %w", err)
	}

	if session.UserID != userID {
		return nil
	}

	if _, err := r.sessionRepo.Revoke(ctx, tokenHash); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	return nil
}

// RevokeAll marks every active session of the user revoked.
func (r *SessionRegistry) RevokeAll(ctx context.Context, userID string) error {
	if err := r.sessionRepo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}

// ListActive returns the user's active sessions newest-first. When the
// caller supplies their refresh secret, the session it backs is flagged
// current.
func (r *SessionRegistry) ListActive(ctx context.Context, userID, presentedSecret string) ([]domain.SessionInfo, error) {
	sessions, err := r.sessionRepo.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var currentHash string
	if presentedSecret != "" {
		currentHash = utils.HashToken(presentedSecret)
	}

	infos := make([]domain.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, domain.SessionInfo{
			ID:        s.ID,
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Current:   currentHash != "" && s.TokenHash == currentHash,
		})
	}

	return infos, nil
}

// DeleteExpired removes sessions past their expiry. Called periodically by
// the janitor; revoked rows inside their window are kept so reuse of their
// secrets stays detectable.
func (r *SessionRegistry) DeleteExpired(ctx context.Context) error {
	return r.sessionRepo.DeleteExpired(ctx)
}

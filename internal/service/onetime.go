package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hobbystash/account-service/internal/domain"
	"github.com/hobbystash/account-service/internal/mailqueue"
	"github.com/hobbystash/account-service/internal/repository"
	"github.com/hobbystash/account-service/internal/utils"
	"github.com/hobbystash/account-service/pkg/observability"
	"go.uber.org/zap"
)

// OneTimeTokenFlow is the shared machinery behind email verification and
// password reset: time-boxed single-use tokens stored on the user row.
// Request initiation is enumeration-safe: callers get the same nil result
// whether or not the address maps to an account, and mail-queue failures
// are logged, never surfaced.
type OneTimeTokenFlow struct {
	userRepo           repository.UserRepository
	queue              MailEnqueuer
	verificationExpiry time.Duration
	resetExpiry        time.Duration
	metrics            *observability.AuthMetrics
	logger             *zap.Logger
	now                func() time.Time
}

// MailEnqueuer hands outbound email jobs to the queue. Satisfied by
// mailqueue.Queue.
type MailEnqueuer interface {
	Enqueue(ctx context.Context, msg mailqueue.Message) error
}

// NewOneTimeTokenFlow creates the one-time token flow.
func NewOneTimeTokenFlow(
	userRepo repository.UserRepository,
	queue MailEnqueuer,
	verificationExpiry time.Duration,
	resetExpiry time.Duration,
	metrics *observability.AuthMetrics,
	logger *zap.Logger,
) *OneTimeTokenFlow {
	return &OneTimeTokenFlow{
		userRepo:           userRepo,
		queue:              queue,
		verificationExpiry: verificationExpiry,
		resetExpiry:        resetExpiry,
		metrics:            metrics,
		logger:             logger,
		now:                time.Now,
	}
}

// NewVerificationToken mints a verification token pair for embedding on a
// user row that is about to be inserted.
func (f *OneTimeTokenFlow) NewVerificationToken() (string, time.Time, error) {
	token, err := utils.NewOpaqueToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate verification token: %w", err)
	}
	return token, f.now().Add(f.verificationExpiry), nil
}

// RequestVerification issues a fresh verification token for the address
// and queues the email. Unknown or already verified addresses are silently
// ignored; the caller's response is identical either way.
func (f *OneTimeTokenFlow) RequestVerification(ctx context.Context, email string) {
	user, err := f.userRepo.GetByEmail(ctx, email)
	if err != nil {
		f.observeLookupMiss(email, err)
		return
	}

	if user.IsEmailVerified {
		return
	}

	token, err := utils.NewOpaqueToken()
	if err != nil {
		f.logger.Error("failed to generate verification token", zap.Error(err))
		return
	}

	if err := f.userRepo.SetVerificationToken(ctx, user.ID, token, f.now().Add(f.verificationExpiry)); err != nil {
		f.logger.Error("failed to store verification token", zap.Error(err))
		return
	}

	f.Enqueue(ctx, mailqueue.KindVerification, user.Email, token)
}

// RequestReset issues a fresh password reset token for the address and
// queues the email, with the same enumeration-safe contract.
func (f *OneTimeTokenFlow) RequestReset(ctx context.Context, email string) {
	user, err := f.userRepo.GetByEmail(ctx, email)
	if err != nil {
		f.observeLookupMiss(email, err)
		return
	}

	token, err := utils.NewOpaqueToken()
	if err != nil {
		f.logger.Error("failed to generate reset token", zap.Error(err))
		return
	}

	if err := f.userRepo.SetResetToken(ctx, user.ID, token, f.now().Add(f.resetExpiry)); err != nil {
		f.logger.Error("failed to store reset token", zap.Error(err))
		return
	}

	f.Enqueue(ctx, mailqueue.KindReset, user.Email, token)
}

// ConsumeVerification marks the token's owner verified. The flag flip and
// the token clear are one statement, so the token can never be replayed
// and verification can never land without clearing it.
func (f *OneTimeTokenFlow) ConsumeVerification(ctx context.Context, token string) (*domain.User, error) {
	user, err := f.lookup(ctx, token, f.userRepo.GetByVerificationToken, func(u *domain.User) *time.Time {
		return u.VerificationExp
	})
	if err != nil {
		return nil, err
	}

	if err := f.userRepo.ConsumeVerificationToken(ctx, user.ID, token); err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}

	user.IsEmailVerified = true
	user.VerificationToken = nil
	user.VerificationExp = nil

	return user, nil
}

// ConsumeReset replaces the owner's password hash, clears the token and
// revokes every session of the user in a single transaction
// (full logout on recovery).
func (f *OneTimeTokenFlow) ConsumeReset(ctx context.Context, token, newHash string) (*domain.User, error) {
	user, err := f.lookup(ctx, token, f.userRepo.GetByResetToken, func(u *domain.User) *time.Time {
		return u.ResetExp
	})
	if err != nil {
		return nil, err
	}

	if err := f.userRepo.ResetPassword(ctx, user.ID, token, newHash); err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to reset password: %w", err)
	}

	user.PasswordHash = newHash
	user.ResetToken = nil
	user.ResetExp = nil

	return user, nil
}

// Enqueue hands an email job to the mail queue. Failures are absorbed: the
// state change that produced the job has already committed.
func (f *OneTimeTokenFlow) Enqueue(ctx context.Context, kind, email, token string) {
	err := f.queue.Enqueue(ctx, mailqueue.Message{
		Kind:  kind,
		Email: email,
		Token: token,
	})
	if err != nil {
		f.logger.Warn("failed to enqueue email",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return
	}

	f.metrics.EmailsQueued.Add(ctx, 1)
}

func (f *OneTimeTokenFlow) lookup(
	ctx context.Context,
	token string,
	get func(context.Context, string) (*domain.User, error),
	expiry func(*domain.User) *time.Time,
) (*domain.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	user, err := get(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if exp := expiry(user); exp != nil && !f.now().Before(*exp) {
		return nil, ErrTokenExpired
	}

	return user, nil
}

func (f *OneTimeTokenFlow) observeLookupMiss(email string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		// Expected for probes; nothing to do and nothing to reveal.
		return
	}
	f.logger.Error("failed to look up account", zap.Error(err))
}

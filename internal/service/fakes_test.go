package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hobbystash/account-service/internal/domain"
	"github.com/hobbystash/account-service/internal/mailqueue"
	"github.com/hobbystash/account-service/internal/repository"
	"github.com/hobbystash/account-service/internal/utils"
	"github.com/hobbystash/account-service/pkg/observability"
	"go.uber.org/zap"
)

// In-memory repositories mirroring the Postgres implementations closely
// enough to exercise the service layer: conditional updates, revoke-not-
// delete semantics and the superseded flag behave as in SQL.

type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	sessions *fakeSessionRepo
}

func newFakeUserRepo(sessions *fakeSessionRepo) *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[string]*domain.User),
		sessions: sessions,
	}
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrDuplicateEmail
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *fakeUserRepo) GetByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByResetToken(ctx context.Context, token string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) UpdateLastLogin(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

func (r *fakeUserRepo) SetVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.VerificationToken = &token
	u.VerificationExp = &expiresAt
	return nil
}

func (r *fakeUserRepo) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.ResetToken = &token
	u.ResetExp = &expiresAt
	return nil
}

func (r *fakeUserRepo) ConsumeVerificationToken(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.VerificationToken == nil || *u.VerificationToken != token {
		return repository.ErrTokenConsumed
	}
	u.IsEmailVerified = true
	u.VerificationToken = nil
	u.VerificationExp = nil
	return nil
}

func (r *fakeUserRepo) ResetPassword(ctx context.Context, userID, token, newHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.ResetToken == nil || *u.ResetToken != token {
		return repository.ErrTokenConsumed
	}
	u.PasswordHash = newHash
	u.ResetToken = nil
	u.ResetExp = nil

	return r.sessions.RevokeAllForUser(ctx, userID)
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, userID, newHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = newHash

	return r.sessions.RevokeAllForUser(ctx, userID)
}

func (r *fakeUserRepo) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, userID)

	return r.sessions.deleteAllForUser(userID)
}

type fakeSessionRepo struct {
	mu     sync.Mutex
	byHash map[string]*domain.RefreshToken
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byHash: make(map[string]*domain.RefreshToken)}
}

func copySession(t *domain.RefreshToken) *domain.RefreshToken {
	c := *t
	return &c
}

func (r *fakeSessionRepo) Create(ctx context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(token)
}

func (r *fakeSessionRepo) insert(token *domain.RefreshToken) error {
	if _, exists := r.byHash[token.TokenHash]; exists {
		return repository.ErrDuplicateToken
	}
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	r.byHash[token.TokenHash] = copySession(token)
	return nil
}

func (r *fakeSessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySession(t), nil
}

func (r *fakeSessionRepo) ListActiveByUserID(ctx context.Context, userID string) ([]*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.RefreshToken
	now := time.Now()
	for _, t := range r.byHash {
		if t.UserID == userID && t.RevokedAt == nil && t.ExpiresAt.After(now) {
			out = append(out, copySession(t))
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	t.RevokedAt = &now
	return true, nil
}

func (r *fakeSessionRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, t := range r.byHash {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (r *fakeSessionRepo) Rotate(ctx context.Context, oldTokenHash string, next *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[oldTokenHash]
	if !ok || t.RevokedAt != nil {
		return repository.ErrSessionRotated
	}
	now := time.Now()
	t.RevokedAt = &now
	t.Superseded = true

	return r.insert(next)
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for hash, t := range r.byHash {
		if !t.ExpiresAt.After(now) {
			delete(r.byHash, hash)
		}
	}
	return nil
}

func (r *fakeSessionRepo) deleteAllForUser(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, t := range r.byHash {
		if t.UserID == userID {
			delete(r.byHash, hash)
		}
	}
	return nil
}

func (r *fakeSessionRepo) activeCount(userID string) int {
	sessions, _ := r.ListActiveByUserID(context.Background(), userID)
	return len(sessions)
}

func (r *fakeSessionRepo) rowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}

type fakeMailQueue struct {
	mu       sync.Mutex
	messages []mailqueue.Message
	err      error
}

func (q *fakeMailQueue) Enqueue(ctx context.Context, msg mailqueue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *fakeMailQueue) all() []mailqueue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]mailqueue.Message(nil), q.messages...)
}

func (q *fakeMailQueue) last() *mailqueue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return nil
	}
	msg := q.messages[len(q.messages)-1]
	return &msg
}

// testEnv wires the service layer onto the fakes with test-friendly knobs:
// cheap bcrypt, nop logger, counters on the global (noop) meter.
type testEnv struct {
	users    *fakeUserRepo
	sessions *fakeSessionRepo
	queue    *fakeMailQueue
	registry *SessionRegistry
	tokens   *OneTimeTokenFlow
	svc      AuthService
}

const (
	testJWTSecret  = "test-secret-key-that-is-at-least-32-characters-long"
	testSessionTTL = 7 * 24 * time.Hour
	testBCryptCost = 4
)

func newTestEnv() *testEnv {
	sessions := newFakeSessionRepo()
	users := newFakeUserRepo(sessions)
	queue := &fakeMailQueue{}

	logger := zap.NewNop()
	metrics, err := observability.NewAuthMetrics("account-service-test")
	if err != nil {
		panic(err)
	}

	jwtManager := utils.NewJWTManager(testJWTSecret, 15*time.Minute)

	registry := NewSessionRegistry(sessions, users, jwtManager, testSessionTTL, metrics, logger)
	tokens := NewOneTimeTokenFlow(users, queue, 24*time.Hour, time.Hour, metrics, logger)
	svc := NewAuthService(users, registry, tokens, jwtManager, testBCryptCost, metrics, logger)

	return &testEnv{
		users:    users,
		sessions: sessions,
		queue:    queue,
		registry: registry,
		tokens:   tokens,
		svc:      svc,
	}
}

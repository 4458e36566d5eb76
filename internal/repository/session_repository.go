package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hobbystash/account-service/internal/domain"
	"github.com/hobbystash/account-service/pkg/database"
	"github.com/lib/pq"
)

// sessionRepository implements SessionRepository interface
type sessionRepository struct {
	db *database.Postgres
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.Postgres) SessionRepository {
	return &sessionRepository{db: db}
}

// Create inserts a new refresh session row
func (r *sessionRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	if err := insertSession(ctx, r.db.DB, token); err != nil {
		return err
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.UserAgent,
		token.IPAddress,
		token.CreatedAt,
		token.ExpiresAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("session with this hash already exists: %w", ErrDuplicateToken)
			}
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves a refresh session by the hash of its secret
func (r *sessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, user_agent, ip_address, created_at, expires_at, revoked_at, superseded
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	token := &domain.RefreshToken{}
	var userAgent, ipAddress sql.NullString
	var revokedAt sql.NullTime

	err := r.db.DB.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&userAgent,
		&ipAddress,
		&token.CreatedAt,
		&token.ExpiresAt,
		&revokedAt,
		&token.Superseded,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session with hash not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session by hash: %w", err)
	}

	if userAgent.Valid {
		token.UserAgent = &userAgent.String
	}
	if ipAddress.Valid {
		token.IPAddress = &ipAddress.String
	}
	if revokedAt.Valid {
		token.RevokedAt = &revokedAt.Time
	}

	return token, nil
}

// ListActiveByUserID retrieves the user's active sessions, newest first
func (r *sessionRepository) ListActiveByUserID(ctx context.Context, userID string) ([]*domain.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, user_agent, ip_address, created_at, expires_at, revoked_at, superseded
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions by user id: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.RefreshToken
	for rows.Next() {
		token := &domain.RefreshToken{}
		var userAgent, ipAddress sql.NullString
		var revokedAt sql.NullTime

		err := rows.Scan(
			&token.ID,
			&token.UserID,
			&token.TokenHash,
			&userAgent,
			&ipAddress,
			&token.CreatedAt,
			&token.ExpiresAt,
			&revokedAt,
			&token.Superseded,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if userAgent.Valid {
			token.UserAgent = &userAgent.String
		}
		if ipAddress.Valid {
			token.IPAddress = &ipAddress.String
		}
		if revokedAt.Valid {
			token.RevokedAt = &revokedAt.Time
		}

		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return tokens, nil
}

// Revoke marks the matching active session revoked. The WHERE clause makes
// it idempotent: an already revoked or missing row is a no-op reported as
// false, nil.
func (r *sessionRepository) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	query := `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
	`

	result, err := r.db.DB.ExecContext(ctx, query, tokenHash, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// RevokeAllForUser marks every active session of the user revoked in one statement
func (r *sessionRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	query := `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	_, err := r.db.DB.ExecContext(ctx, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke sessions for user: %w", err)
	}

	return nil
}

// Rotate revokes the presented session and inserts its successor in one
// transaction. The conditional revoke is what guarantees at most one of two
// concurrent rotations on the same row wins; the loser gets
// ErrSessionRotated and must take the reuse-detection path.
func (r *sessionRepository) Rotate(ctx context.Context, oldTokenHash string, next *domain.RefreshToken) error {
	if next.ID == "" {
		next.ID = uuid.New().String()
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now()
	}

	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2, superseded = TRUE
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, oldTokenHash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke presented session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("presented session lost the rotation race: %w", ErrSessionRotated)
	}

	if err := insertSession(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}

	return nil
}

// DeleteExpired deletes all refresh sessions past their expiry
func (r *sessionRepository) DeleteExpired(ctx context.Context) error {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	_, err := r.db.DB.ExecContext(ctx, query, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return nil
}

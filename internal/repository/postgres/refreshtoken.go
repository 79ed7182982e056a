package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

const tokenUniqueConstraint = "refresh_tokens_token_uniq"

type RefreshTokenRepo struct {
	DB DBTX
}

const insertToken = `-- name: Insert refresh token
INSERT INTO refresh_tokens (id, token, subject, created_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, token, subject, created_at, expires_at, revoked
`

func (r *RefreshTokenRepo) Insert(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, insertToken, token.ID, token.Token, token.Subject, token.CreatedAt, token.ExpiresAt, token.Revoked)
	got, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == tokenUniqueConstraint {
			return got, fmt.Errorf("repo error: %w", apperrors.ErrDuplicateToken)
		}

		return got, fmt.Errorf("db error: %w", err)
	}

	return got, nil
}

const getToken = `-- name: Get token by its value
SELECT id, token, subject, created_at, expires_at, revoked
FROM refresh_tokens
WHERE token = $1
`

// Get token
// It should return result even it expired or revoked already
func (r *RefreshTokenRepo) GetByToken(ctx context.Context, token string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, token)
	got, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return got, nil
	case errors.Is(err, pgx.ErrNoRows):
		return got, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return got, fmt.Errorf("db error: %w", err)
	}
}

// Lock released at transaction end (immediately outside of transaction)
const lockSubject = `-- name: Serialize writers of the subject chain
SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
`

const revokeAllActive = `-- name: Revoke all active tokens of the subject
UPDATE refresh_tokens
SET revoked = true
WHERE subject = $1 AND revoked = false
`

// Revoke subject chain
// Takes advisory lock on the subject first: so concurrent revoke+insert transactions of the same subject run one by one
func (r *RefreshTokenRepo) RevokeAllActive(ctx context.Context, subject string) (int64, error) {
	_, err := r.DB.Exec(ctx, lockSubject, subject)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	tag, err := r.DB.Exec(ctx, revokeAllActive, subject)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

const markRevoked = `-- name: Mark token revoked if it is not revoked yet
WITH target AS (
	SELECT id FROM refresh_tokens WHERE id = $1
), updated AS (
	UPDATE refresh_tokens
	SET revoked = true
	WHERE id = $1 AND revoked = false
	RETURNING id
)
SELECT EXISTS (SELECT 1 FROM target), EXISTS (SELECT 1 FROM updated)
`

// Mark token revoked
// Only one of concurrent callers wins, others got ErrRefreshTokenRevoked
func (r *RefreshTokenRepo) MarkRevoked(ctx context.Context, id uuid.UUID) error {
	var found, updated bool
	err := r.DB.QueryRow(ctx, markRevoked, id).Scan(&found, &updated)

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case !found:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	case !updated:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	default:
		return nil
	}
}

const purgeExpired = `-- name: Delete expired tokens
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, purgeExpired, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.Token, &t.Subject, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
	return t, err
}

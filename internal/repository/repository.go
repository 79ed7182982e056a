package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string, roles []string) (models.User, error)

	// Get user by it's username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// Refresh token repository interface (the credential store)
type RefreshTokenRepo interface {
	// Insert new token
	// If token value collides must return apperrors.ErrDuplicateToken
	Insert(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even if it is revoked or expired
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	GetByToken(ctx context.Context, token string) (models.RefreshToken, error)

	// Revoke every not revoked token of the subject and return how many were revoked
	// Must be idempotent
	RevokeAllActive(ctx context.Context, subject string) (int64, error)

	// Compare-and-set revoked=false -> revoked=true for single token
	// If the token is revoked already must return apperrors.ErrRefreshTokenRevoked
	// If token not found must return apperrors.ErrRefreshTokenNotFound
	MarkRevoked(ctx context.Context, id uuid.UUID) error

	// Delete tokens expired before 'now' (revoked or not)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

// Package session implements rotating single-use refresh tokens.
//
// Every subject owns at most one active token. Creating a token revokes all previous ones,
// verifying a token consumes it. Records become expired lazily, at inspection time.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
)

const (
	defaultTokenBytes = 32
	minTokenBytes     = 16
)

type Config struct {
	// Refresh token lifetime
	// Zero is allowed: every token is born expired
	RefreshTTL time.Duration

	// Length of random token before hex encoding
	// If not set than default is used
	TokenBytes int

	// Revoke every active token of subject when revoked token is presented again
	RevokeChainOnReuse bool

	// Clock, time.Now if not set
	Now func() time.Time
}

type Engine struct {
	refreshTTL    time.Duration
	tokenBytes    int
	revokeOnReuse bool
	now           func() time.Time

	storage repository.Storage
	logger  logger.Logger
}

func New(cfg Config, storage repository.Storage, l logger.Logger) (*Engine, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}
	if l == nil {
		return nil, errors.New("logger must not be nil")
	}

	if cfg.RefreshTTL < 0 {
		return nil, fmt.Errorf("refresh token ttl must not be negative, got %s", cfg.RefreshTTL)
	}

	if cfg.TokenBytes == 0 {
		cfg.TokenBytes = defaultTokenBytes
	}
	if cfg.TokenBytes < minTokenBytes {
		return nil, fmt.Errorf("refresh token must be at least %d bytes, got %d", minTokenBytes, cfg.TokenBytes)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		refreshTTL:    cfg.RefreshTTL,
		tokenBytes:    cfg.TokenBytes,
		revokeOnReuse: cfg.RevokeChainOnReuse,
		now:           cfg.Now,
		storage:       storage,
		logger:        l,
	}, nil
}

func (e *Engine) TTL() time.Duration {
	return e.refreshTTL
}

// Store time with the precision postgres keeps it
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// Create new active token for subject revoking all previous ones
func (e *Engine) Create(ctx context.Context, subject string) (models.RefreshToken, error) {
	if subject == "" {
		return models.RefreshToken{}, errors.New("error while creating refresh token. Err: empty subject")
	}

	value, err := e.generate()
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("error while generating refresh token. Err: %w", err)
	}

	now := e.clock()
	token := models.RefreshToken{
		Token:     value,
		Subject:   subject,
		CreatedAt: now,
		ExpiresAt: now.Add(e.refreshTTL),
		Revoked:   false,
	}

	var revoked int64
	err = e.storage.InTx(ctx, func(tx repository.Storage) error {
		revoked, err = tx.Refresh().RevokeAllActive(ctx, subject)
		if err != nil {
			return fmt.Errorf("error while revoking previous tokens. Err: %w", err)
		}

		token, err = tx.Refresh().Insert(ctx, token)
		if err != nil {
			return fmt.Errorf("error while saving refresh token. Err: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.RefreshToken{}, err
	}

	e.logger.Debug("refresh token created", "subject", subject, "id", token.ID, "revoked", revoked)
	return token, nil
}

// Verify consumes the token: on success it becomes revoked and the record as it was before is returned
// Caller is expected to Create the replacement
func (e *Engine) Verify(ctx context.Context, value string) (models.RefreshToken, error) {
	token, err := e.storage.Refresh().GetByToken(ctx, value)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("error while getting refresh token. Err: %w", err)
	}

	switch StateOf(token, e.now()) {
	case StateRevoked:
		e.reused(ctx, token)
		return models.RefreshToken{}, fmt.Errorf("error while verifying refresh token. Err: %w", apperrors.ErrRefreshTokenRevoked)

	case StateExpired:
		// Lost compare-and-set is fine here: the token is unusable either way
		err = e.storage.Refresh().MarkRevoked(ctx, token.ID)
		if err != nil && !errors.Is(err, apperrors.ErrRefreshTokenRevoked) {
			return models.RefreshToken{}, fmt.Errorf("error while revoking expired token. Err: %w", err)
		}
		return models.RefreshToken{}, fmt.Errorf("error while verifying refresh token. Err: %w", apperrors.ErrRefreshTokenExpired)
	}

	err = e.storage.Refresh().MarkRevoked(ctx, token.ID)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
		// Someone consumed it concurrently
		e.reused(ctx, token)
		return models.RefreshToken{}, fmt.Errorf("error while consuming refresh token. Err: %w", err)
	case err != nil:
		return models.RefreshToken{}, fmt.Errorf("error while consuming refresh token. Err: %w", err)
	}

	e.logger.Debug("refresh token consumed", "subject", token.Subject, "id", token.ID)
	return token, nil
}

// Revoke every active token of subject. Returns number of revoked tokens
func (e *Engine) RevokeForSubject(ctx context.Context, subject string) (int64, error) {
	var count int64

	err := e.storage.InTx(ctx, func(tx repository.Storage) (err error) {
		count, err = tx.Refresh().RevokeAllActive(ctx, subject)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("error while revoking refresh tokens. Err: %w", err)
	}

	e.logger.Debug("refresh tokens revoked", "subject", subject, "revoked", count)
	return count, nil
}

// Revoked token presented again. Possibly stolen, so optionally kill the whole chain
func (e *Engine) reused(ctx context.Context, token models.RefreshToken) {
	e.logger.Warn("revoked refresh token presented", "subject", token.Subject, "id", token.ID)

	if !e.revokeOnReuse {
		return
	}

	count, err := e.RevokeForSubject(ctx, token.Subject)
	if err != nil {
		e.logger.Error("failed to revoke token chain on reuse", "subject", token.Subject, "error", err)
		return
	}
	e.logger.Warn("token chain revoked on reuse", "subject", token.Subject, "revoked", count)
}

func (e *Engine) generate() (string, error) {
	b := make([]byte, e.tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
)

func newToken(value string, subject string, expiresAt time.Time) models.RefreshToken {
	return models.RefreshToken{
		ID:        uuid.New(),
		Token:     value,
		Subject:   subject,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}
}

func TestStorage_RefreshTokens(t *testing.T) {
	farFuture := time.Now().Add(24 * time.Hour)

	t.Run("insert and get", func(t *testing.T) {
		repo := NewStorage().Refresh()
		token := newToken("secret-token", "alice", farFuture)

		_, err := repo.Insert(t.Context(), token)
		require.NoError(t, err)

		got, err := repo.GetByToken(t.Context(), "secret-token")
		require.NoError(t, err)
		require.Equal(t, token, got)
	})

	t.Run("insert assigns id if empty", func(t *testing.T) {
		repo := NewStorage().Refresh()
		token := newToken("secret-token", "alice", farFuture)
		token.ID = uuid.Nil

		got, err := repo.Insert(t.Context(), token)

		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, got.ID)
	})

	t.Run("insert duplicate token fail", func(t *testing.T) {
		repo := NewStorage().Refresh()
		_, err := repo.Insert(t.Context(), newToken("secret-token", "alice", farFuture))
		require.NoError(t, err)

		_, err = repo.Insert(t.Context(), newToken("secret-token", "bob", farFuture))

		require.ErrorIs(t, err, apperrors.ErrDuplicateToken)
	})

	t.Run("second active token of subject rejected", func(t *testing.T) {
		repo := NewStorage().Refresh()
		_, err := repo.Insert(t.Context(), newToken("first", "alice", farFuture))
		require.NoError(t, err)

		_, err = repo.Insert(t.Context(), newToken("second", "alice", farFuture))

		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrDuplicateToken)
	})

	t.Run("get not existed token", func(t *testing.T) {
		repo := NewStorage().Refresh()

		_, err := repo.GetByToken(t.Context(), "not-existed")

		require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
	})

	t.Run("mark revoked only once", func(t *testing.T) {
		repo := NewStorage().Refresh()
		token := newToken("secret-token", "alice", farFuture)
		_, err := repo.Insert(t.Context(), token)
		require.NoError(t, err)

		require.NoError(t, repo.MarkRevoked(t.Context(), token.ID))
		err = repo.MarkRevoked(t.Context(), token.ID)

		require.ErrorIs(t, err, apperrors.ErrRefreshTokenRevoked)
	})

	t.Run("mark revoked not existed token", func(t *testing.T) {
		repo := NewStorage().Refresh()

		err := repo.MarkRevoked(t.Context(), uuid.New())

		require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
	})

	t.Run("revoke all active", func(t *testing.T) {
		repo := NewStorage().Refresh()
		alice := newToken("alice", "alice", farFuture)
		bob := newToken("bob", "bob", farFuture)
		for _, token := range []models.RefreshToken{alice, bob} {
			_, err := repo.Insert(t.Context(), token)
			require.NoError(t, err)
		}

		count, err := repo.RevokeAllActive(t.Context(), "alice")
		require.NoError(t, err)
		require.Equal(t, int64(1), count)

		count, err = repo.RevokeAllActive(t.Context(), "alice")
		require.NoError(t, err)
		require.Equal(t, int64(0), count, "already revoked tokens are not counted")

		got, err := repo.GetByToken(t.Context(), "bob")
		require.NoError(t, err)
		require.False(t, got.Revoked, "other subject tokens must stay active")
	})

	t.Run("purge expired", func(t *testing.T) {
		repo := NewStorage().Refresh()
		now := time.Now()
		_, err := repo.Insert(t.Context(), newToken("expired", "alice", now.Add(-time.Minute)))
		require.NoError(t, err)
		_, err = repo.Insert(t.Context(), newToken("alive", "bob", now.Add(time.Minute)))
		require.NoError(t, err)

		count, err := repo.PurgeExpired(t.Context(), now)

		require.NoError(t, err)
		require.Equal(t, int64(1), count)
		_, err = repo.GetByToken(t.Context(), "expired")
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		_, err = repo.GetByToken(t.Context(), "alive")
		require.NoError(t, err)
	})

	t.Run("canceled context fail", func(t *testing.T) {
		repo := NewStorage().Refresh()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := repo.GetByToken(ctx, "whatever")

		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestStorage_Users(t *testing.T) {
	t.Run("create and get", func(t *testing.T) {
		repo := NewStorage().User()

		created, err := repo.CreateUser(t.Context(), "alice", "hash", []string{models.RoleUser})
		require.NoError(t, err)

		got, err := repo.GetUserByUsername(t.Context(), "alice")
		require.NoError(t, err)
		require.Equal(t, created, got)
	})

	t.Run("duplicate user fail", func(t *testing.T) {
		repo := NewStorage().User()
		_, err := repo.CreateUser(t.Context(), "alice", "hash", nil)
		require.NoError(t, err)

		_, err = repo.CreateUser(t.Context(), "alice", "other", nil)

		require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
	})

	t.Run("not found", func(t *testing.T) {
		repo := NewStorage().User()

		_, err := repo.GetUserByUsername(t.Context(), "nobody")

		require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})
}

func TestStorage_InTx(t *testing.T) {
	farFuture := time.Now().Add(24 * time.Hour)

	t.Run("commit", func(t *testing.T) {
		s := NewStorage()

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			_, err := tx.Refresh().Insert(t.Context(), newToken("secret-token", "alice", farFuture))
			return err
		})
		require.NoError(t, err)

		_, err = s.Refresh().GetByToken(t.Context(), "secret-token")
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		s := NewStorage()
		token := newToken("secret-token", "alice", farFuture)
		_, err := s.Refresh().Insert(t.Context(), token)
		require.NoError(t, err)
		errBoom := errors.New("boom")

		err = s.InTx(t.Context(), func(tx repository.Storage) error {
			_, err := tx.Refresh().RevokeAllActive(t.Context(), "alice")
			require.NoError(t, err)
			_, err = tx.User().CreateUser(t.Context(), "alice", "hash", nil)
			require.NoError(t, err)
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		got, err := s.Refresh().GetByToken(t.Context(), "secret-token")
		require.NoError(t, err)
		require.False(t, got.Revoked, "revoke must be rolled back")
		_, err = s.User().GetUserByUsername(t.Context(), "alice")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound, "user creation must be rolled back")
	})

	t.Run("nested tx uses outer lock", func(t *testing.T) {
		s := NewStorage()

		err := s.InTx(t.Context(), func(tx repository.Storage) error {
			return tx.InTx(t.Context(), func(inner repository.Storage) error {
				_, err := inner.User().CreateUser(t.Context(), "alice", "hash", nil)
				return err
			})
		})
		require.NoError(t, err)

		_, err = s.User().GetUserByUsername(t.Context(), "alice")
		require.NoError(t, err)
	})

	t.Run("transactions are serialized", func(t *testing.T) {
		s := NewStorage()
		var wg sync.WaitGroup

		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.InTx(context.Background(), func(tx repository.Storage) error {
					if _, err := tx.Refresh().RevokeAllActive(context.Background(), "alice"); err != nil {
						return err
					}
					_, err := tx.Refresh().Insert(context.Background(), newToken(uuid.NewString(), "alice", farFuture))
					return err
				})
			}()
		}
		wg.Wait()

		// Exactly one active token must be left
		count, err := s.Refresh().RevokeAllActive(t.Context(), "alice")
		require.NoError(t, err)
		require.Equal(t, int64(1), count)
	})
}

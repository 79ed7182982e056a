package user

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository/postgres"
	"github.com/nkiryanov/authgate/internal/testutil"
)

func TestUser(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Helper function to create UserService within transaction
	inTx := func(t *testing.T, fn func(s *UserService)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fn(NewService(BcryptHasher{Cost: bcrypt.MinCost}, storage.User()))
		})
	}

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				user, err := s.CreateUser(t.Context(), "test-user", "password123", nil)

				require.NoError(t, err, "creating new user should be ok")
				require.NotEmpty(t, user.ID, "user ID should not be empty")
				require.Equal(t, "test-user", user.Username, "username should match")
				require.NotEmpty(t, user.HashedPassword, "password hash should not be empty")
				require.NotEqual(t, "password123", user.HashedPassword, "password should be hashed")
				require.NotZero(t, user.CreatedAt, "created at should be set")
				require.Equal(t, []string{models.RoleUser}, user.Roles, "plain user role by default")
			})
		})

		t.Run("create with roles", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				user, err := s.CreateUser(t.Context(), "boss", "password123", []string{"admin", "user", "admin"})

				require.NoError(t, err)
				require.Equal(t, []string{models.RoleAdmin, models.RoleUser}, user.Roles, "roles have to be deduplicated")
			})
		})

		t.Run("unknown role fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123", []string{"root"})

				require.ErrorIs(t, err, apperrors.ErrInvalidRole)
			})
		})

		t.Run("empty password fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), "test-user", "", nil)

				require.Error(t, err, "creating user with empty password should fail")
			})
		})

		t.Run("existed user fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123", nil)
				require.NoError(t, err)

				_, err = s.CreateUser(t.Context(), "test-user", "other", nil)

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("EnsureUser", func(t *testing.T) {
		inTx(t, func(s *UserService) {
			created, err := s.EnsureUser(t.Context(), "admin", "admin-pwd", []string{models.RoleAdmin})
			require.NoError(t, err)
			require.True(t, created)

			created, err = s.EnsureUser(t.Context(), "admin", "other-pwd", []string{models.RoleAdmin})
			require.NoError(t, err, "existed user is not an error")
			require.False(t, created)

			_, err = s.Match(t.Context(), "admin", "admin-pwd")
			require.NoError(t, err, "password of existed user must stay untouched")
		})
	})

	t.Run("Match", func(t *testing.T) {
		t.Run("match ok", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123", []string{models.RoleAdmin})
				require.NoError(t, err)

				principal, err := s.Match(t.Context(), "test-user", "password123")

				require.NoError(t, err)
				require.Equal(t, models.Principal{Subject: "test-user", Scopes: []string{models.RoleAdmin}}, principal)
			})
		})

		t.Run("wrong password", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123", nil)
				require.NoError(t, err)

				_, err = s.Match(t.Context(), "test-user", "wrong")

				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			})
		})

		t.Run("unknown user same error", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.Match(t.Context(), "nobody", "password123")

				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				require.NotErrorIs(t, err, apperrors.ErrUserNotFound, "must not tell user does not exist")
			})
		})
	})

	t.Run("Lookup", func(t *testing.T) {
		inTx(t, func(s *UserService) {
			_, err := s.CreateUser(t.Context(), "test-user", "password123", nil)
			require.NoError(t, err)

			principal, err := s.Lookup(t.Context(), "test-user")
			require.NoError(t, err)
			require.Equal(t, "test-user", principal.Subject)
			require.Equal(t, []string{models.RoleUser}, principal.Scopes)

			_, err = s.Lookup(t.Context(), "nobody")
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}

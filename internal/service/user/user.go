// Package user manages accounts and acts as identity provider for authentication
package user

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
)

var knownRoles = []string{models.RoleUser, models.RoleAdmin}

type UserService struct {
	hasher   PasswordHasher
	userRepo repository.UserRepo

	// Compared against when user not found, so both cases take the same time
	dummyHash func() (string, error)
}

func NewService(hasher PasswordHasher, userRepo repository.UserRepo) *UserService {
	if hasher == nil {
		hasher = DefaultHasher
	}

	return &UserService{
		hasher:   hasher,
		userRepo: userRepo,
		dummyHash: sync.OnceValues(func() (string, error) {
			return hasher.Hash("dummy-password")
		}),
	}
}

// Create user with roles, plain user if no roles set
func (s *UserService) CreateUser(ctx context.Context, username string, password string, roles []string) (models.User, error) {
	var user models.User

	if username == "" {
		return user, errors.New("username must not be empty")
	}
	if password == "" {
		return user, errors.New("password must not be empty")
	}

	roles, err := normalizeRoles(roles)
	if err != nil {
		return user, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, username, hash, roles)
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Create user if it not exists yet. Reports whether user was created
func (s *UserService) EnsureUser(ctx context.Context, username string, password string, roles []string) (bool, error) {
	_, err := s.userRepo.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, apperrors.ErrUserNotFound):
		return false, fmt.Errorf("can't get user. Err: %w", err)
	}

	_, err = s.CreateUser(ctx, username, password, roles)
	switch {
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Match checks the password and returns the principal of user
// Unknown user and wrong password are indistinguishable
func (s *UserService) Match(ctx context.Context, username string, password string) (models.Principal, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		if hash, hashErr := s.dummyHash(); hashErr == nil {
			_ = s.hasher.Compare(hash, password)
		}
		return models.Principal{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.Principal{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.Principal{}, apperrors.ErrInvalidCredentials
	}

	return user.Principal(), nil
}

// Lookup resolves current principal of subject
func (s *UserService) Lookup(ctx context.Context, subject string) (models.Principal, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, subject)
	if err != nil {
		return models.Principal{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	return user.Principal(), nil
}

func normalizeRoles(roles []string) ([]string, error) {
	if len(roles) == 0 {
		return []string{models.RoleUser}, nil
	}

	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		if !slices.Contains(knownRoles, role) {
			return nil, fmt.Errorf("unknown role %q. Err: %w", role, apperrors.ErrInvalidRole)
		}
		if !slices.Contains(normalized, role) {
			normalized = append(normalized, role)
		}
	}

	return normalized, nil
}

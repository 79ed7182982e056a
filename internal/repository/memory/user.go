package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

type UserRepo struct {
	s *Storage
}

func (r *UserRepo) CreateUser(ctx context.Context, username string, hashedPassword string, roles []string) (models.User, error) {
	user := models.User{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		Username:       username,
		HashedPassword: hashedPassword,
		Roles:          slices.Clone(roles),
	}

	err := r.s.do(ctx, func(st *state) error {
		if _, ok := st.users[username]; ok {
			return apperrors.ErrUserAlreadyExists
		}
		st.users[username] = user
		return nil
	})
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User

	err := r.s.do(ctx, func(st *state) error {
		u, ok := st.users[username]
		if !ok {
			return apperrors.ErrUserNotFound
		}
		user = u
		user.Roles = slices.Clone(u.Roles)
		return nil
	})

	return user, err
}

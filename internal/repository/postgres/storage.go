package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/authgate/internal/repository"
)

// Storage over a pool or an open transaction.
// InTx on a transaction-backed storage opens a savepoint.
type Storage struct {
	db    DBTX
	users *UserRepo
	token *RefreshTokenRepo
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{
		db:    db,
		users: &UserRepo{DB: db},
		token: &RefreshTokenRepo{DB: db},
	}
}

func (s *Storage) User() repository.UserRepo {
	return s.users
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return s.token
}

// InTx commits when fn returns nil. The error of fn is returned unwrapped
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	var fnErr error

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		fnErr = fn(NewStorage(tx))
		return fnErr
	})

	switch {
	case fnErr != nil:
		return fnErr
	case err != nil:
		return fmt.Errorf("db tx error: %w", err)
	}
	return nil
}

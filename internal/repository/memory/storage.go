// Package memory keeps users and refresh tokens in process memory.
// Every operation is serialized by one mutex; InTx holds it for the whole transaction.
// Useful for tests and single-instance deployments without database.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/models"
	"github.com/nkiryanov/authgate/internal/repository"
)

type state struct {
	users   map[string]models.User // by username
	tokens  map[uuid.UUID]models.RefreshToken
	byValue map[string]uuid.UUID
}

func (s *state) clone() *state {
	return &state{
		users:   maps.Clone(s.users),
		tokens:  maps.Clone(s.tokens),
		byValue: maps.Clone(s.byValue),
	}
}

type Storage struct {
	mu *sync.Mutex
	st *state

	// The mutex is held by enclosing InTx
	inTx bool
}

func NewStorage() *Storage {
	return &Storage{
		mu: &sync.Mutex{},
		st: &state{
			users:   make(map[string]models.User),
			tokens:  make(map[uuid.UUID]models.RefreshToken),
			byValue: make(map[string]uuid.UUID),
		},
	}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{s: s}
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return &RefreshTokenRepo{s: s}
}

// Run fn with exclusive access to the storage
// If fn fails every change made by it is discarded
// Storage passed to fn must not be used after InTx returns
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory tx error: %w", err)
	}

	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	snapshot := s.st.clone()

	err := fn(&Storage{mu: s.mu, st: s.st, inTx: true})
	if err != nil {
		*s.st = *snapshot
	}

	return err
}

// Run fn holding the lock unless it is already held by transaction
func (s *Storage) do(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory storage error: %w", err)
	}

	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	return fn(s.st)
}

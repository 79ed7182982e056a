package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

type RefreshTokenRepo struct {
	s *Storage
}

func (r *RefreshTokenRepo) Insert(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	err := r.s.do(ctx, func(st *state) error {
		if _, ok := st.byValue[token.Token]; ok {
			return fmt.Errorf("repo error: %w", apperrors.ErrDuplicateToken)
		}
		if _, ok := st.tokens[token.ID]; ok {
			return fmt.Errorf("repo error: token id %s already exists", token.ID)
		}
		if !token.Revoked {
			for _, t := range st.tokens {
				if t.Subject == token.Subject && !t.Revoked {
					return fmt.Errorf("repo error: subject %q already has active token", token.Subject)
				}
			}
		}

		st.tokens[token.ID] = token
		st.byValue[token.Token] = token.ID
		return nil
	})

	return token, err
}

func (r *RefreshTokenRepo) GetByToken(ctx context.Context, token string) (models.RefreshToken, error) {
	var got models.RefreshToken

	err := r.s.do(ctx, func(st *state) error {
		id, ok := st.byValue[token]
		if !ok {
			return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
		}
		got = st.tokens[id]
		return nil
	})

	return got, err
}

func (r *RefreshTokenRepo) RevokeAllActive(ctx context.Context, subject string) (int64, error) {
	var count int64

	err := r.s.do(ctx, func(st *state) error {
		for id, t := range st.tokens {
			if t.Subject == subject && !t.Revoked {
				t.Revoked = true
				st.tokens[id] = t
				count++
			}
		}
		return nil
	})

	return count, err
}

func (r *RefreshTokenRepo) MarkRevoked(ctx context.Context, id uuid.UUID) error {
	return r.s.do(ctx, func(st *state) error {
		t, ok := st.tokens[id]
		switch {
		case !ok:
			return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
		case t.Revoked:
			return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
		}

		t.Revoked = true
		st.tokens[id] = t
		return nil
	})
}

func (r *RefreshTokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var count int64

	err := r.s.do(ctx, func(st *state) error {
		for id, t := range st.tokens {
			if t.ExpiresAt.Before(now) {
				delete(st.tokens, id)
				delete(st.byValue, t.Token)
				count++
			}
		}
		return nil
	})

	return count, err
}

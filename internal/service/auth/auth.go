// Package auth ties identities, access tokens and refresh sessions together
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
)

// Source of identities: checks secrets and resolves subjects
type IdentityProvider interface {
	// Must return ErrInvalidCredentials both for unknown identity and wrong secret
	Match(ctx context.Context, identity string, secret string) (models.Principal, error)
	Lookup(ctx context.Context, subject string) (models.Principal, error)
}

type AccessIssuer interface {
	Issue(subject string, scopes []string) (models.IssuedToken, error)
	Verify(token string) (models.Principal, error)
}

type SessionEngine interface {
	Create(ctx context.Context, subject string) (models.RefreshToken, error)
	Verify(ctx context.Context, token string) (models.RefreshToken, error)
	RevokeForSubject(ctx context.Context, subject string) (int64, error)
}

// Failed login counter
type LoginLimiter interface {
	Check(ctx context.Context, identity string) error
	Fail(ctx context.Context, identity string) error
	Reset(ctx context.Context, identity string) error
}

type Config struct {
	// Optional, logins are not throttled if not set
	Limiter LoginLimiter
}

// Auth service
type AuthService struct {
	identities IdentityProvider
	access     AccessIssuer
	sessions   SessionEngine
	limiter    LoginLimiter

	logger logger.Logger
}

func NewService(cfg Config, identities IdentityProvider, access AccessIssuer, sessions SessionEngine, l logger.Logger) (*AuthService, error) {
	if identities == nil || access == nil || sessions == nil {
		return nil, errors.New("identity provider, access issuer and session engine must not be nil")
	}
	if l == nil {
		return nil, errors.New("logger must not be nil")
	}

	return &AuthService{
		identities: identities,
		access:     access,
		sessions:   sessions,
		limiter:    cfg.Limiter,
		logger:     l,
	}, nil
}

// Login checks credentials and starts new session, previous session of the subject ends
func (s *AuthService) Login(ctx context.Context, identity string, secret string) (models.TokenPair, error) {
	if err := s.checkLimit(ctx, identity); err != nil {
		return models.TokenPair{}, err
	}

	principal, err := s.identities.Match(ctx, identity, secret)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			s.recordFailure(ctx, identity)
		}
		return models.TokenPair{}, fmt.Errorf("login failed. Err: %w", err)
	}
	s.resetLimit(ctx, identity)

	pair, err := s.issuePair(ctx, principal)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("login failed. Err: %w", err)
	}

	return pair, nil
}

// Refresh exchanges refresh token for new pair. Refresh token may be used only once
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.sessions.Verify(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh failed. Err: %w", err)
	}

	// Scopes may have changed since login
	principal, err := s.identities.Lookup(ctx, token.Subject)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh failed. Err: %w", err)
	}

	pair, err := s.issuePair(ctx, principal)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh failed. Err: %w", err)
	}

	return pair, nil
}

// Logout ends all sessions of the token subject
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	token, err := s.sessions.Verify(ctx, refresh)
	if err != nil {
		return fmt.Errorf("logout failed. Err: %w", err)
	}

	if _, err := s.sessions.RevokeForSubject(ctx, token.Subject); err != nil {
		return fmt.Errorf("logout failed. Err: %w", err)
	}

	s.logger.Info("user logged out", "subject", token.Subject)
	return nil
}

// Authenticate validates access token. No storage access
func (s *AuthService) Authenticate(access string) (models.Principal, error) {
	return s.access.Verify(access)
}

// Access token can't be taken back: if refresh creation fails it stays valid until expiration
func (s *AuthService) issuePair(ctx context.Context, principal models.Principal) (models.TokenPair, error) {
	access, err := s.access.Issue(principal.Subject, principal.Scopes)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := s.sessions.Create(ctx, principal.Subject)
	if err != nil {
		s.logger.Error("refresh token not created, issued access token stays valid", "subject", principal.Subject, "error", err)
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Limiter backend faults do not block logins
func (s *AuthService) checkLimit(ctx context.Context, identity string) error {
	if s.limiter == nil {
		return nil
	}

	err := s.limiter.Check(ctx, identity)
	switch {
	case errors.Is(err, apperrors.ErrTooManyLoginAttempts):
		s.logger.Warn("login throttled", "identity", identity)
		return fmt.Errorf("login failed. Err: %w", err)
	case err != nil:
		s.logger.Error("login limiter check failed", "error", err)
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, identity string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Fail(ctx, identity); err != nil {
		s.logger.Error("login limiter failure not recorded", "error", err)
	}
}

func (s *AuthService) resetLimit(ctx context.Context, identity string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(ctx, identity); err != nil {
		s.logger.Error("login limiter reset failed", "error", err)
	}
}

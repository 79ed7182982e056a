package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidRole       = errors.New("invalid role")

	// Never tells whether the identity or the secret was wrong
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrTooManyLoginAttempts = errors.New("too many login attempts")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	// Token collision on insert. Means the random source is broken, must not be retried
	ErrDuplicateToken = errors.New("refresh token already exists")

	ErrInvalidSignature   = errors.New("access token signature is invalid")
	ErrAccessTokenExpired = errors.New("access token is expired")
)

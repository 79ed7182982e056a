package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/authgate/internal/handlers/middleware"
	"github.com/nkiryanov/authgate/internal/logger"
	"github.com/nkiryanov/authgate/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /register", handleRegister(userService, logger))
	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh", handleRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))
	apiauth.Handle("GET /me", withAuth(handleMe()))

	root := http.NewServeMux()
	root.Handle("/api/v1/auth/", http.StripPrefix("/api/v1/auth", apiauth))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Login user with username and password
	// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Exchange refresh token for new token pair
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	// If token already used or revoked: has to return apperrors.ErrRefreshTokenRevoked
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// End every session of the refresh token owner
	Logout(ctx context.Context, refresh string) error

	// Validate access token
	Authenticate(access string) (models.Principal, error)
}

type userService interface {
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	// and apperrors.ErrInvalidRole for unknown roles
	CreateUser(ctx context.Context, username string, password string, roles []string) (models.User, error)
}

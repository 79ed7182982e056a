package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/handlers/render"
	"github.com/nkiryanov/authgate/internal/handlers/userctx"
	"github.com/nkiryanov/authgate/internal/logger"
)

type messageResponse struct {
	Message string `json:"message"`
}

// Render error of auth flow with matching status
// Unexpected errors are logged and hidden from client
func renderAuthError(w http.ResponseWriter, err error, logger logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrTooManyLoginAttempts):
		render.ServiceError(w, "Too many login attempts, try later", http.StatusTooManyRequests)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.ServiceError(w, "Invalid username or password", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrUserNotFound):
		render.ServiceError(w, "User not found", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
		render.ServiceError(w, "Refresh token revoked", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrRefreshTokenExpired):
		render.ServiceError(w, "Refresh token expired", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrAccessTokenExpired):
		render.ServiceError(w, "Access token expired", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrInvalidSignature):
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
	default:
		logger.Error("auth request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func handleRegister(userService userService, logger logger.Logger) http.Handler {
	type request struct {
		Username string   `json:"username" validate:"required,min=2,max=50,username"`
		Password string   `json:"password" validate:"required,min=8,max=128"`
		Roles    []string `json:"roles"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		_, err = userService.CreateUser(r.Context(), data.Username, data.Password, data.Roles)
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
			return
		case errors.Is(err, apperrors.ErrInvalidRole):
			render.ServiceError(w, "Invalid role", http.StatusBadRequest)
			return
		case err != nil:
			logger.Error("user registration failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("user registered", "username", data.Username)
		render.Created(w, messageResponse{Message: "User registered successfully"})
	})
}

func handleLogin(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Username, data.Password)
		if err != nil {
			renderAuthError(w, err, logger)
			return
		}

		renderTokenPair(w, pair)
	})
}

func handleRefresh(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := refreshFromRequest(w, r)
		switch {
		case errors.Is(err, errNoRefreshToken):
			render.ServiceError(w, "Refresh token required", http.StatusUnauthorized)
			return
		case err != nil:
			render.DecodeError(w, err)
			return
		}

		pair, err := authService.Refresh(r.Context(), refresh)
		if err != nil {
			renderAuthError(w, err, logger)
			return
		}

		renderTokenPair(w, pair)
	})
}

func handleLogout(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := refreshFromRequest(w, r)
		switch {
		case errors.Is(err, errNoRefreshToken):
			render.ServiceError(w, "Refresh token required", http.StatusUnauthorized)
			return
		case err != nil:
			render.DecodeError(w, err)
			return
		}

		if err := authService.Logout(r.Context(), refresh); err != nil {
			renderAuthError(w, err, logger)
			return
		}

		clearRefreshCookie(w)
		render.JSON(w, messageResponse{Message: "Logged out successfully"})
	})
}

func handleMe() http.Handler {
	type response struct {
		Subject string   `json:"subject"`
		Scopes  []string `json:"scopes"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{Subject: principal.Subject, Scopes: principal.Scopes})
	})
}

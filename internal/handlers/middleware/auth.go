package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/handlers/render"
	"github.com/nkiryanov/authgate/internal/handlers/userctx"
	"github.com/nkiryanov/authgate/internal/models"
)

const bearerPrefix = "Bearer "

type authenticator interface {
	Authenticate(access string) (models.Principal, error)
}

// Allow only requests with valid access token in 'Authorization: Bearer ...' header
func AuthMiddleware(a authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := a.Authenticate(strings.TrimSpace(header[len(bearerPrefix):]))
			switch {
			case errors.Is(err, apperrors.ErrAccessTokenExpired):
				render.ServiceError(w, "Access token expired", http.StatusUnauthorized)
				return
			case err != nil:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

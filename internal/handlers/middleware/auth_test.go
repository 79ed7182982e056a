package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/handlers/userctx"
	"github.com/nkiryanov/authgate/internal/models"
)

// Allow to use a function as authenticator
type authFunc func(access string) (models.Principal, error)

func (f authFunc) Authenticate(access string) (models.Principal, error) {
	return f(access)
}

func TestAuthMiddleware_Auth(t *testing.T) {
	// Simple handler that try to get principal from context
	// If ok write subject to response
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Must always be true cause middleware has to set principal or write error to response
		principal, ok := userctx.FromContext(r.Context())
		require.True(t, ok)

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(principal.Subject))
		require.NoError(t, err, "should write subject to response")
	})

	// Accepts only "good-token"
	middleware := AuthMiddleware(authFunc(func(access string) (models.Principal, error) {
		switch access {
		case "good-token":
			return models.Principal{Subject: "test-user"}, nil
		case "expired-token":
			return models.Principal{}, fmt.Errorf("validate: %w", apperrors.ErrAccessTokenExpired)
		default:
			return models.Principal{}, errors.New("fuck off!")
		}
	}))

	srv := httptest.NewServer(middleware(handler))
	defer srv.Close()

	tests := []struct {
		name         string
		header       string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "auth ok",
			header:       "Bearer good-token",
			expectedCode: http.StatusOK,
			expectedBody: "test-user",
		},
		{
			name:         "scheme is case insensitive",
			header:       "bearer good-token",
			expectedCode: http.StatusOK,
			expectedBody: "test-user",
		},
		{
			name:         "no header",
			header:       "",
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"error": "service_error", "message": "Unauthorized"}`,
		},
		{
			name:         "not bearer scheme",
			header:       "Basic good-token",
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"error": "service_error", "message": "Unauthorized"}`,
		},
		{
			name:         "invalid token",
			header:       "Bearer bad-token",
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"error": "service_error", "message": "Unauthorized"}`,
		},
		{
			name:         "expired token",
			header:       "Bearer expired-token",
			expectedCode: http.StatusUnauthorized,
			expectedBody: `{"error": "service_error", "message": "Access token expired"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/test", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err, "should make request to test server")
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err, "should read response body")
			defer resp.Body.Close() // nolint:errcheck

			require.Equalf(t, tt.expectedCode, resp.StatusCode, "unexpected status. Resp: %s", string(body))
			if tt.expectedCode == http.StatusOK {
				require.Equal(t, tt.expectedBody, string(body))
			} else {
				require.JSONEq(t, tt.expectedBody, string(body))
			}
		})
	}
}

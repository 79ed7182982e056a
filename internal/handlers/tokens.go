package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nkiryanov/authgate/internal/handlers/render"
	"github.com/nkiryanov/authgate/internal/models"
)

const (
	refreshCookieName = "refreshtoken"
	accessHeaderName  = "Authorization"
	accessAuthScheme  = "Bearer"
)

var errNoRefreshToken = errors.New("refresh token not provided")

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Username     string `json:"username"`
}

// Write access token to header and refresh token to cookie, and both to body
func renderTokenPair(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(accessHeaderName, accessAuthScheme+" "+pair.Access.Value)

	// Already expired refresh token (zero ttl) removes the cookie
	maxAge := int(time.Until(pair.Refresh.ExpiresAt).Round(time.Second).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.Refresh.Token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	render.JSON(w, tokenPairResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Token,
		TokenType:    accessAuthScheme,
		ExpiresIn:    int64(time.Until(pair.Access.ExpiresAt).Round(time.Second).Seconds()),
		Username:     pair.Refresh.Subject,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// Refresh token is taken from cookie, or from body '{"refresh_token": "..."}' if there is no cookie
func refreshFromRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	render.LimitBody(w, r)
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	switch {
	case errors.Is(err, io.EOF):
		return "", errNoRefreshToken
	case err != nil:
		return "", err
	case body.RefreshToken == "":
		return "", errNoRefreshToken
	}

	return body.RefreshToken, nil
}

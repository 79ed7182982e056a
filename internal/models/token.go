package models

import (
	"time"
)

// Who the credential is bound to and what it may do
type Principal struct {
	Subject string
	Scopes  []string
}

// Signed access token as handed to the client
type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by the auth service on login and refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh RefreshToken
}

package session

import (
	"time"

	"github.com/nkiryanov/authgate/internal/models"
)

// Lifecycle state of refresh token record
type State int

const (
	StateActive State = iota
	StateRevoked
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRevoked:
		return "revoked"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// State classifies the record at moment now. Revoked wins over expired.
// Token is expired at its ExpiresAt instant, so zero TTL tokens are never active.
func StateOf(record models.RefreshToken, now time.Time) State {
	switch {
	case record.Revoked:
		return StateRevoked
	case !now.Before(record.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

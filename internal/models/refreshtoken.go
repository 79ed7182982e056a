package models

import (
	"time"

	"github.com/google/uuid"
)

type RefreshToken struct {
	ID        uuid.UUID
	Token     string
	Subject   string
	CreatedAt time.Time
	ExpiresAt time.Time // set once on creation
	Revoked   bool      // terminal once true
}

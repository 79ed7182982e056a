package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string
	Roles          []string
}

// Principal the user authenticates as: username is the subject, roles are the scopes
func (u User) Principal() Principal {
	return Principal{Subject: u.Username, Scopes: u.Roles}
}

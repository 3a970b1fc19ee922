package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Role string

const (
	RoleOrganizer Role = "organizer"
	RoleVendor    Role = "vendor"
)

func (r Role) Valid() bool {
	return r == RoleOrganizer || r == RoleVendor
}

// User is the display profile joined into order listings. Accounts are managed elsewhere.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID        string    `bun:"id,pk" json:"id"`
	FullName  string    `bun:"full_name,notnull" json:"full_name"`
	Email     string    `bun:"email" json:"email,omitempty"`
	Role      Role      `bun:"role" json:"role,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"-"`
}

type UserSummary struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

// Actor is the authenticated caller as supplied by the identity layer.
type Actor struct {
	UserID string
	Role   Role
}

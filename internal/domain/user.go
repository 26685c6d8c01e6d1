package domain

import (
	"time"

	"github.com/guregu/null/v5"
)

// Role is fixed at registration and never changes.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAgent    Role = "AGENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAgent
}

// User is the domain model for customers and agents.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Age          null.Int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAgent reports whether the user may hold ticket assignments.
func (u *User) IsAgent() bool {
	return u != nil && u.Role == RoleAgent
}

// UserSummary is the display form of a user reference.
type UserSummary struct {
	ID    string
	Name  string
	Email string
}

// Summary projects the user into its display form.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

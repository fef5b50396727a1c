package storage

import (
	"context"
	"slices"
	"time"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a notification recipient. Administrators are users with RoleAdmin.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile"`
	Role      string    `json:"role"`
	OptOuts   []string  `json:"opt_outs"`
	CreatedAt time.Time `json:"created_at"`
}

// OptedOut reports whether the user unsubscribed from the given category.
func (u *User) OptedOut(category string) bool {
	return slices.Contains(u.OptOuts, category)
}

// UserStore persists notification recipients.
type UserStore interface {
	// GetUser returns a user by ID, or nil if not found.
	GetUser(ctx context.Context, id int64) (*User, error)
	// CreateUser inserts a user and sets its ID.
	CreateUser(ctx context.Context, u *User) error
}

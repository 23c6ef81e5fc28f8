package model

import (
	"strings"
	"time"
)

// User is an authenticated identity. Its ID is the key of the caller's live
// session group.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateUserRequest represents a request to create a new user.
type CreateUserRequest struct {
	Email     string
	FirstName string
	LastName  string
}

// Validate validates the create user request.
func (r *CreateUserRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return ErrEmailRequired
	}
	return nil
}

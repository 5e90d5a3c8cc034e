package identity

import (
	"errors"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var (
	ErrNotFound        = errors.New("user not found")
	ErrAdminMissing    = errors.New("admin user is not provisioned")
	ErrProvisionFailed = errors.New("could not provision user")
	ErrInvalidClaims   = errors.New("invalid identity claims")
)

// User is a resolved marketplace identity.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Claims is what the trusted upstream boundary asserts about the caller.
// Ref may be a user id, a username or an email.
type Claims struct {
	Ref         string
	Email       string
	Username    string
	DisplayName string
	AvatarURL   string
}

// Candidate is one attempt at a fresh identity row.
type Candidate struct {
	Username    string
	Email       string
	DisplayName string
}

package types

import (
	"time"

	"github.com/google/uuid"
)

// User is an account stored in the users table.
type User struct {
	// ID is the unique identifier.
	ID uuid.UUID `json:"id" db:"id"`

	// Username is the unique login handle.
	Username string `json:"username" db:"username"`

	// FirstName is the given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the family name.
	LastName string `json:"last_name" db:"last_name"`

	// Email is the unique contact address, also accepted as a login handle.
	Email string `json:"email" db:"email"`

	// PasswordHash is the self-describing Argon2id hash. Never serialized.
	PasswordHash string `json:"-" db:"password_hash"`

	// TokenVersion must match the version embedded in a session token for
	// that token to be accepted.
	TokenVersion int32 `json:"-" db:"token_version"`

	// LockedUntil is reserved for account lockout.
	LockedUntil *time.Time `json:"locked_until,omitempty" db:"locked_until"`

	// LastLoginAt is stamped on every successful sign-in.
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`

	// DeletedAt marks a soft-deleted account.
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the last update timestamp.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewUser is the payload for inserting an account.
type NewUser struct {
	FirstName    string
	LastName     string
	Username     string
	Email        string
	PasswordHash string
	TokenVersion int32
}

// ProfileUpdate carries the profile fields to change. Nil fields are left as is.
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// Empty reports whether no field is set.
func (p ProfileUpdate) Empty() bool {
	return p.Username == nil && p.Email == nil && p.FirstName == nil && p.LastName == nil
}

// UserSummary is the listing view of an account with its role names.
type UserSummary struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles"`
}

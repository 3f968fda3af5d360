package model

import "time"

// User represents a registered account.
//
// Email is the login identity and is unique across all users. It is compared
// exactly as stored (case-sensitive); only surrounding whitespace is trimmed
// on the way in.
//
// WHY PasswordHash HAS json:"-"?
// The bcrypt hash must never leave the server, not even to its owner. The
// "-" tag makes encoding/json skip the field entirely, so handing a *User to
// writeJSON is always safe.
//
// GitHubID is zero for accounts created with email and password. Accounts
// created through GitHub sign-in have an empty PasswordHash and can only log
// in through GitHub.
type User struct {
	ID           string    `json:"id"                 db:"id"`
	Email        string    `json:"email"              db:"email"`
	PasswordHash string    `json:"-"                  db:"password_hash"`
	DisplayName  string    `json:"displayName"        db:"display_name"`
	GitHubID     int64     `json:"githubId,omitempty" db:"github_id"`
	CreatedAt    time.Time `json:"createdAt"          db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"          db:"updated_at"`
}

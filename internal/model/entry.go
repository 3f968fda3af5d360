// Package model defines the data structures used throughout the application.
package model

import "time"

// Entry is a single dated journal entry.
//
// OwnerID is never serialized: the client only ever sees its own entries, so
// the owner is implicit in the bearer token that fetched them. CreatedAt and
// UpdatedAt are always UTC with millisecond precision, which is the
// resolution the date filter works at.
type Entry struct {
	ID        string    `json:"id"        db:"id"`
	OwnerID   string    `json:"-"         db:"user_id"`
	Title     string    `json:"title"     db:"title"`
	Content   string    `json:"content"   db:"content"`
	Tags      []string  `json:"tags"      db:"tags"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

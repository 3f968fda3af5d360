// Package repository declares the storage contracts the service layer
// depends on. Implementations live in the sqlite and postgres subpackages.
//
// OWNERSHIP:
// Every EntryRepository method takes the owner's user ID and scopes its
// query with it. An entry that exists but belongs to someone else is
// indistinguishable from one that does not exist: both return
// apperror.ErrNotFound.
package repository

import (
	"context"

	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
)

type EntryRepository interface {
	// Create assigns ID and UpdatedAt. CreatedAt is kept if already set.
	Create(ctx context.Context, entry *model.Entry) error
	GetForOwner(ctx context.Context, ownerID, id string) (*model.Entry, error)
	// ListForOwner returns matches newest CreatedAt first, ties in insertion order.
	ListForOwner(ctx context.Context, ownerID string, filter query.Filter) ([]model.Entry, error)
	// Update replaces title, content and tags, refreshing UpdatedAt. On
	// success entry.CreatedAt holds the stored creation instant.
	Update(ctx context.Context, entry *model.Entry) error
	DeleteForOwner(ctx context.Context, ownerID, id string) error
}

type UserRepository interface {
	// CreateUser returns apperror.ErrConflict if the email (or GitHub ID) is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
}

// Store is a full storage backend as wired by the server.
type Store interface {
	EntryRepository
	UserRepository
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int64, error)
	Close() error
}

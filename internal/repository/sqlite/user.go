package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
	"github.com/sakif/journal/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, display_name, github_id, created_at, updated_at`

// CreateUser inserts a new account.
//
// UNIQUENESS IS ENFORCED BY THE DATABASE:
// The service could look the email up first and only insert when it is free,
// but two concurrent registrations would both see "free". The UNIQUE
// constraint on users.email makes the second INSERT fail instead, and that
// failure is translated to DuplicateUser here.
//
// github_id is written as NULL for password accounts. UNIQUE allows any
// number of NULLs, while a literal 0 would collide on the second account.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(query.Resolution)
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	var githubID sql.NullInt64
	if user.GitHubID != 0 {
		githubID = sql.NullInt64{Int64: user.GitHubID, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		githubID,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateUser(user.Email)
		}
		return apperror.Unavailable("sqlite: inserting user", err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id = ?", id, "user", id)
}

// GetUserByEmail looks an account up by its exact email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email = ?", email, "user", email)
}

func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getUser(ctx, "github_id = ?", githubID, "github user", formatInt(githubID))
}

func (db *DB) getUser(ctx context.Context, cond string, arg any, resource, key string) (*model.User, error) {
	var (
		u                    model.User
		githubID             sql.NullInt64
		createdAt, updatedAt int64
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+cond,
		arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&githubID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, apperror.Unavailable("sqlite: getting "+resource+" "+key, err)
	}

	u.GitHubID = githubID.Int64
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

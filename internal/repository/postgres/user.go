package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
)

const userColumns = `id, email, password_hash, display_name, github_id, created_at, updated_at`

// CreateUser inserts a new account; a unique_violation on email or github_id
// becomes DuplicateUser.
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		githubID,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateUser(user.Email)
		}
		return apperror.Unavailable("postgres: inserting user", err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id = $1", id, "user", id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email = $1", email, "user", email)
}

func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getUser(ctx, "github_id = $1", githubID, "github user", strconv.FormatInt(githubID, 10))
}

func (db *DB) getUser(ctx context.Context, cond string, arg any, resource, key string) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+cond,
		arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &githubID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, apperror.Unavailable("postgres: getting "+resource+" "+key, err)
	}

	u.GitHubID = githubID.Int64
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

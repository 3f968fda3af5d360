package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
)

const entryColumns = `id, user_id, title, content, tags, created_at, updated_at`

func (db *DB) Create(ctx context.Context, entry *model.Entry) error {
	entry.ID = xid.New().String()

	now := time.Now().UTC().Truncate(query.Resolution)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	} else {
		entry.CreatedAt = entry.CreatedAt.UTC().Truncate(query.Resolution)
	}
	entry.UpdatedAt = now
	if entry.Tags == nil {
		entry.Tags = []string{}
	}

	tags, err := encodeTags(entry.Tags)
	if err != nil {
		return apperror.Unavailable("postgres: encoding tags", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, title, content, tags, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`,
		entry.ID,
		entry.OwnerID,
		entry.Title,
		entry.Content,
		tags,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return apperror.Unavailable("postgres: creating entry", err)
	}
	return nil
}

func (db *DB) GetForOwner(ctx context.Context, ownerID, id string) (*model.Entry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("entry", id)
		}
		return nil, apperror.Unavailable("postgres: getting entry "+id, err)
	}
	return entry, nil
}

// ListForOwner builds the same predicate as the sqlite store. Postgres lets a
// placeholder be referenced more than once, so the LIKE pattern is bound a
// single time and reused across title, content and tags.
func (db *DB) ListForOwner(ctx context.Context, ownerID string, filter query.Filter) ([]model.Entry, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{ownerID}
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Created != nil {
		from, to := next(filter.Created.From), next(filter.Created.To)
		where = append(where, "created_at BETWEEN "+from+" AND "+to)
	}

	if filter.Search != "" {
		p := next(filter.LikePattern())
		where = append(where, `(lower(title) LIKE `+p+` ESCAPE '\'
			OR lower(content) LIKE `+p+` ESCAPE '\'
			OR EXISTS (SELECT 1 FROM jsonb_array_elements_text(entries.tags) AS t(tag) WHERE lower(t.tag) LIKE `+p+` ESCAPE '\'))`)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+entryColumns+`
		 FROM entries
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, seq ASC`,
		args...,
	)
	if err != nil {
		return nil, apperror.Unavailable("postgres: listing entries", err)
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperror.Unavailable("postgres: scanning entry row", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("postgres: iterating entries", err)
	}
	return entries, nil
}

func (db *DB) Update(ctx context.Context, entry *model.Entry) error {
	entry.UpdatedAt = time.Now().UTC().Truncate(query.Resolution)
	if entry.Tags == nil {
		entry.Tags = []string{}
	}

	tags, err := encodeTags(entry.Tags)
	if err != nil {
		return apperror.Unavailable("postgres: encoding tags", err)
	}

	var createdAt time.Time
	err = db.conn.QueryRowContext(ctx,
		`UPDATE entries
		 SET title = $1, content = $2, tags = $3::jsonb, updated_at = $4
		 WHERE id = $5 AND user_id = $6
		 RETURNING created_at`,
		entry.Title,
		entry.Content,
		tags,
		entry.UpdatedAt,
		entry.ID,
		entry.OwnerID,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("entry", entry.ID)
	}
	if err != nil {
		return apperror.Unavailable("postgres: updating entry "+entry.ID, err)
	}

	entry.CreatedAt = createdAt.UTC()
	return nil
}

func (db *DB) DeleteForOwner(ctx context.Context, ownerID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM entries WHERE id = $1 AND user_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return apperror.Unavailable("postgres: deleting entry "+id, err)
	}
	return requireOneRow(result, id)
}

func requireOneRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperror.Unavailable("postgres: checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("entry", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.Entry, error) {
	var (
		e    model.Entry
		tags []byte
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Content, &tags, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	e.Tags = decoded
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

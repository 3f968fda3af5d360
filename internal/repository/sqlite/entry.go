package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
	"github.com/sakif/journal/internal/repository"
)

var _ repository.EntryRepository = (*DB)(nil)

const entryColumns = `id, user_id, title, content, tags, created_at, updated_at`

// Create inserts a new entry owned by entry.OwnerID.
//
// ID GENERATION WITH xid:
// xid generates 20-char, URL-safe, globally unique IDs that sort by creation
// time, e.g. "cv37rs3pp9olc6atsptg".
//
// CreatedAt is honoured when the caller set it (backdating from the calendar
// view); otherwise it is "now". Both timestamps are truncated to the
// millisecond resolution the column stores, so the struct the caller holds
// matches what a later read returns.
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
		return apperror.Unavailable("sqlite: encoding tags", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, title, content, tags, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OwnerID,
		entry.Title,
		entry.Content,
		tags,
		toMillis(entry.CreatedAt),
		toMillis(entry.UpdatedAt),
	)
	if err != nil {
		return apperror.Unavailable("sqlite: creating entry", err)
	}

	return nil
}

// GetForOwner retrieves a single entry, scoped to its owner.
//
// The owner check lives in the WHERE clause, so "exists but belongs to
// someone else" and "does not exist" both come back as sql.ErrNoRows and are
// reported as the same NotFound.
func (db *DB) GetForOwner(ctx context.Context, ownerID, id string) (*model.Entry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+entryColumns+`
		 FROM entries
		 WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)

	entry, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("entry", id)
		}
		return nil, apperror.Unavailable("sqlite: getting entry "+id, err)
	}

	return entry, nil
}

// ListForOwner returns the owner's entries that match filter.
//
// BUILDING THE WHERE CLAUSE:
// Conditions are appended as parameterized fragments; user input only ever
// travels as ? arguments. The text filter is a LIKE with an explicit ESCAPE
// character so that '%' and '_' typed by the user match literally.
//
// Both sides are lowered before LIKE sees them: the pattern with
// strings.ToLower, the columns with unicode_lower (see sqlite.go), so
// case-insensitivity holds beyond ASCII.
//
// Tags are a JSON array; json_each expands it into rows so a tag can be
// matched with the same LIKE as title and content.
//
// ORDERING:
// created_at DESC puts the newest entry first. rowid grows with insertion, so
// rowid ASC breaks ties in insertion order.
func (db *DB) ListForOwner(ctx context.Context, ownerID string, filter query.Filter) ([]model.Entry, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{ownerID}
	)

	if filter.Created != nil {
		where = append(where, "created_at BETWEEN ? AND ?")
		args = append(args, toMillis(filter.Created.From), toMillis(filter.Created.To))
	}

	if filter.Search != "" {
		pattern := filter.LikePattern()
		where = append(where, `(unicode_lower(title) LIKE ? ESCAPE '\'
			OR unicode_lower(content) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM json_each(entries.tags) WHERE unicode_lower(json_each.value) LIKE ? ESCAPE '\'))`)
		args = append(args, pattern, pattern, pattern)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+entryColumns+`
		 FROM entries
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, rowid ASC`,
		args...,
	)
	if err != nil {
		return nil, apperror.Unavailable("sqlite: listing entries", err)
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperror.Unavailable("sqlite: scanning entry row", err)
		}
		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable("sqlite: iterating entries", err)
	}

	return entries, nil
}

// Update writes title, content and tags back and refreshes updated_at.
//
// The UPDATE is filtered on both id and user_id. If it matched no row the
// entry either does not exist or is not this owner's; both are NotFound.
// created_at is never written here. RETURNING hands the stored value back
// in the same statement, so entry is complete without a second read.
func (db *DB) Update(ctx context.Context, entry *model.Entry) error {
	entry.UpdatedAt = time.Now().UTC().Truncate(query.Resolution)
	if entry.Tags == nil {
		entry.Tags = []string{}
	}

	tags, err := encodeTags(entry.Tags)
	if err != nil {
		return apperror.Unavailable("sqlite: encoding tags", err)
	}

	var createdAt int64
	err = db.conn.QueryRowContext(ctx,
		`UPDATE entries
		 SET title = ?, content = ?, tags = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?
		 RETURNING created_at`,
		entry.Title,
		entry.Content,
		tags,
		toMillis(entry.UpdatedAt),
		entry.ID,
		entry.OwnerID,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return apperror.NotFound("entry", entry.ID)
	}
	if err != nil {
		return apperror.Unavailable("sqlite: updating entry "+entry.ID, err)
	}

	entry.CreatedAt = fromMillis(createdAt)
	return nil
}

// DeleteForOwner permanently removes an entry. Same NotFound rules as Update.
func (db *DB) DeleteForOwner(ctx context.Context, ownerID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM entries WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return apperror.Unavailable("sqlite: deleting entry "+id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperror.Unavailable("sqlite: checking rows affected", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("entry", id)
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.Entry, error) {
	var (
		e                    model.Entry
		tags                 string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Content, &tags, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	e.Tags = decoded
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

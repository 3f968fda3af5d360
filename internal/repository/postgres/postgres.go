// Package postgres implements the repository interfaces on PostgreSQL through
// pgx's database/sql driver.
//
// It mirrors the sqlite package query for query. The differences are in the
// column types: timestamps are TIMESTAMPTZ, tags are JSONB, and a BIGSERIAL
// seq column stands in for SQLite's implicit rowid as the insertion order
// tie-breaker.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/sakif/journal/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var _ repository.Store = (*DB)(nil)

type DB struct {
	conn       *sql.DB
	migrations *goose.Provider
}

// New connects to the database at dsn (a postgres:// URL) and applies any
// pending migrations.
func New(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db, err := NewWithConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := db.migrations.Up(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

// NewWithConn wraps an already opened pool without touching the schema.
func NewWithConn(conn *sql.DB) (*DB, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: loading migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, conn, sub)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating migration provider: %w", err)
	}
	return &DB{conn: conn, migrations: provider}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	return db.migrations.GetDBVersion(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTags(raw []byte) ([]string, error) {
	tags := []string{}
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

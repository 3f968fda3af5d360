// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code and works everywhere Go works.
//
// SCHEMA MIGRATIONS:
// The schema lives in migrations/*.sql, embedded into the binary with
// go:embed and applied by goose when the database is opened. goose records
// applied versions in its own goose_db_version table, so opening an existing
// database only runs the migrations it has not seen yet.
//
// TIMESTAMPS:
// All timestamps are stored as INTEGER unix milliseconds in UTC. The date
// filter compares creation instants numerically; storing formatted strings
// would make that comparison depend on how the driver renders time zones.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/journal/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// compile-time check that *DB is a complete storage backend
var _ repository.Store = (*DB)(nil)

// unicodeLower is the SQL name of a lower() that folds every Unicode letter.
// SQLite's built-in lower() and LIKE only fold ASCII, so "Été" would never
// match a search for "été".
const unicodeLower = "unicode_lower"

// Scalar functions are registered with the driver once per process and are
// available on every connection opened afterwards.
func init() {
	err := sqlite.RegisterDeterministicScalarFunction(unicodeLower, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case nil:
				return nil, nil
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			default:
				return v, nil
			}
		})
	if err != nil {
		panic(fmt.Sprintf("sqlite: registering %s: %v", unicodeLower, err))
	}
}

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn       *sql.DB
	migrations *goose.Provider
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/journal.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
//
// PRAGMAS VIA THE DSN:
// database/sql keeps a pool of connections and SQLite pragmas such as
// foreign_keys are per-connection. Passing them as _pragma DSN parameters
// makes the driver apply them to every connection it opens, not only the
// first one.
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// Pinning the pool to one connection keeps the schema visible.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: loading migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, sub)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: creating migration provider: %w", err)
	}

	db := &DB{conn: conn, migrations: provider}
	if _, err := provider.Up(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath == ":memory:" {
		return dbPath + "?" + params
	}
	// WAL lets readers proceed while a write is in progress.
	return dbPath + "?" + params + "&_pragma=journal_mode(WAL)"
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// SchemaVersion reports the latest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int64, error) {
	return db.migrations.GetDBVersion(ctx)
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
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

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if raw == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

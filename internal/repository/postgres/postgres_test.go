package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	db, err := NewWithConn(conn)
	if err != nil {
		t.Fatalf("NewWithConn error: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return db, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

var entryRowColumns = []string{"id", "user_id", "title", "content", "tags", "created_at", "updated_at"}

// =========================================================================
// ENTRY TESTS
// =========================================================================

func TestCreate_Success(t *testing.T) {
	db, mock := newMockDB(t)

	q := `(?s)^INSERT\s+INTO\s+entries\s*\(id,\s*user_id,\s*title,\s*content,\s*tags,\s*created_at,\s*updated_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5::jsonb,\s*\$6,\s*\$7\)\s*$`
	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "u-1", "Title", "Body", `["a","b"]`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &model.Entry{OwnerID: "u-1", Title: "Title", Content: "Body", Tags: []string{"a", "b"}}
	if err := db.Create(context.Background(), e); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("Create did not populate ID/CreatedAt: %+v", e)
	}
	expectationsMet(t, mock)
}

func TestCreate_NilTagsEncodeAsEmptyArray(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`INSERT\s+INTO\s+entries`).
		WithArgs(sqlmock.AnyArg(), "u-1", "t", "c", `[]`, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := db.Create(context.Background(), &model.Entry{OwnerID: "u-1", Title: "t", Content: "c"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	expectationsMet(t, mock)
}

func TestCreate_DBErrorIsUnavailable(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`INSERT\s+INTO\s+entries`).WillReturnError(errors.New("connection refused"))

	err := db.Create(context.Background(), &model.Entry{OwnerID: "u-1", Title: "t", Content: "c"})
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestGetForOwner_Found(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	q := `(?s)^SELECT\s+id,\s*user_id,\s*title,\s*content,\s*tags,\s*created_at,\s*updated_at\s+FROM\s+entries\s+WHERE\s+id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2\s*$`
	rows := sqlmock.NewRows(entryRowColumns).
		AddRow("e-1", "u-1", "Title", "Body", []byte(`["x"]`), created, created)
	mock.ExpectQuery(q).WithArgs("e-1", "u-1").WillReturnRows(rows)

	got, err := db.GetForOwner(context.Background(), "u-1", "e-1")
	if err != nil {
		t.Fatalf("GetForOwner error: %v", err)
	}
	if got.ID != "e-1" || got.Title != "Title" || len(got.Tags) != 1 || got.Tags[0] != "x" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	expectationsMet(t, mock)
}

func TestGetForOwner_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT`).WithArgs("e-404", "u-1").WillReturnError(sql.ErrNoRows)

	_, err := db.GetForOwner(context.Background(), "u-1", "e-404")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListForOwner_NoFilter(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	q := `(?s)^SELECT\s+.+\s+FROM\s+entries\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC,\s*seq\s+ASC\s*$`
	rows := sqlmock.NewRows(entryRowColumns).
		AddRow("e-2", "u-1", "second", "b", []byte(`[]`), now, now).
		AddRow("e-1", "u-1", "first", "a", []byte(`[]`), now.Add(-time.Hour), now)
	mock.ExpectQuery(q).WithArgs("u-1").WillReturnRows(rows)

	got, err := db.ListForOwner(context.Background(), "u-1", query.Filter{})
	if err != nil {
		t.Fatalf("ListForOwner error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e-2" || got[1].ID != "e-1" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	expectationsMet(t, mock)
}

func TestListForOwner_DateAndSearch(t *testing.T) {
	db, mock := newMockDB(t)
	day, _ := query.ParseDate("2024-03-10")
	r := query.DayRange(day, -330)

	q := `(?s)WHERE\s+user_id\s*=\s*\$1\s+AND\s+created_at\s+BETWEEN\s+\$2\s+AND\s+\$3\s+AND\s+\(lower\(title\)\s+LIKE\s+\$4.+jsonb_array_elements_text.+LIKE\s+\$4.+ORDER\s+BY`
	mock.ExpectQuery(q).
		WithArgs("u-1", r.From, r.To, `%50\%%`).
		WillReturnRows(sqlmock.NewRows(entryRowColumns))

	got, err := db.ListForOwner(context.Background(), "u-1", query.Filter{Search: "50%", Created: &r})
	if err != nil {
		t.Fatalf("ListForOwner error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
	expectationsMet(t, mock)
}

func TestListForOwner_DBError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("db down"))

	_, err := db.ListForOwner(context.Background(), "u-1", query.Filter{})
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestUpdate_Success(t *testing.T) {
	db, mock := newMockDB(t)
	created := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	q := `(?s)^UPDATE\s+entries\s+SET\s+title\s*=\s*\$1,\s*content\s*=\s*\$2,\s*tags\s*=\s*\$3::jsonb,\s*updated_at\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$5\s+AND\s+user_id\s*=\s*\$6\s+RETURNING\s+created_at\s*$`
	mock.ExpectQuery(q).
		WithArgs("new", "body", `["t"]`, sqlmock.AnyArg(), "e-1", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	e := &model.Entry{ID: "e-1", OwnerID: "u-1", Title: "new", Content: "body", Tags: []string{"t"}}
	if err := db.Update(context.Background(), e); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if !e.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v from RETURNING", e.CreatedAt, created)
	}
	expectationsMet(t, mock)
}

func TestUpdate_NoRowsIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`UPDATE\s+entries`).WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	err := db.Update(context.Background(), &model.Entry{ID: "e-1", OwnerID: "someone-else"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdate_DBErrorIsUnavailable(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`UPDATE\s+entries`).WillReturnError(errors.New("connection reset"))

	err := db.Update(context.Background(), &model.Entry{ID: "e-1", OwnerID: "u-1"})
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestDeleteForOwner(t *testing.T) {
	db, mock := newMockDB(t)

	q := `(?s)^DELETE\s+FROM\s+entries\s+WHERE\s+id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2\s*$`
	mock.ExpectExec(q).WithArgs("e-1", "u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("e-1", "u-1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := db.DeleteForOwner(context.Background(), "u-1", "e-1"); err != nil {
		t.Fatalf("DeleteForOwner error: %v", err)
	}
	if err := db.DeleteForOwner(context.Background(), "u-1", "e-1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

// =========================================================================
// USER TESTS
// =========================================================================

func TestCreateUser_Success(t *testing.T) {
	db, mock := newMockDB(t)

	q := `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*email,\s*password_hash,\s*display_name,\s*github_id,\s*created_at,\s*updated_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*$`
	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", "hash", "Alice", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &model.User{Email: "alice@example.com", PasswordHash: "hash", DisplayName: "Alice"}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if u.ID == "" {
		t.Fatal("CreateUser did not set ID")
	}
	expectationsMet(t, mock)
}

func TestCreateUser_UniqueViolationIsConflict(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := db.CreateUser(context.Background(), &model.User{Email: "dup@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestCreateUser_OtherErrorIsUnavailable(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`INSERT\s+INTO\s+users`).WillReturnError(&pgconn.PgError{Code: "08006"})

	err := db.CreateUser(context.Background(), &model.User{Email: "a@example.com"})
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	q := `(?s)^SELECT\s+id,\s*email,\s*password_hash,\s*display_name,\s*github_id,\s*created_at,\s*updated_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "display_name", "github_id", "created_at", "updated_at"}).
		AddRow("u-1", "alice@example.com", "hash", "Alice", nil, now, now)
	mock.ExpectQuery(q).WithArgs("alice@example.com").WillReturnRows(rows)

	got, err := db.GetUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail error: %v", err)
	}
	if got.ID != "u-1" || got.GitHubID != 0 || got.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", got)
	}
	expectationsMet(t, mock)
}

func TestGetUserByGitHubID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+github_id`).WithArgs(int64(42)).WillReturnError(sql.ErrNoRows)

	_, err := db.GetUserByGitHubID(context.Background(), 42)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("23505 should be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("23503 (foreign key) should not be a unique violation")
	}
	if isUniqueViolation(errors.New("plain")) {
		t.Error("plain error should not be a unique violation")
	}
}

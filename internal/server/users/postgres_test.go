package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/KossiPascal/atlas-kanban/internal/common"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestCreate_Success(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+users\s*\(email,\s*password_hash,\s*display_name,\s*color,\s*admin\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id\s*$`
	rows := sqlmock.NewRows([]string{"id"}).AddRow("u-1")
	mock.ExpectQuery(q).
		WithArgs("alice@example.com", "hash", "alice", "", false).
		WillReturnRows(rows)

	repo := NewPostgresRepository(db)
	got, err := repo.Create(context.Background(), &User{
		Email: "alice@example.com", PasswordHash: "hash", DisplayName: "alice",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "u-1" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetByEmail_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+.+\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	mock.ExpectQuery(q).WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)

	_, err := NewPostgresRepository(db).GetByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected common.ErrNotFound, got %v", err)
	}
}

func TestGetByEmail_Found(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+.+\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "display_name", "color", "admin"}).
		AddRow("u-1", "alice@example.com", "hash", "alice", "#f00", true)
	mock.ExpectQuery(q).WithArgs("alice@example.com").WillReturnRows(rows)

	got, err := NewPostgresRepository(db).GetByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got.ID != "u-1" || !got.Admin {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestRefreshTokens_CreateFindDelete(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	repo := NewPostgresRefreshTokenRepository(db)

	insert := `(?s)^\s*INSERT\s+INTO\s+refresh_tokens\s*\(user_id,\s*token,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*$`
	mock.ExpectExec(insert).
		WithArgs("u-1", "tok", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), "u-1", "tok", time.Hour); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	find := `(?s)^\s*SELECT\s+user_id,\s*expires_at\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	expires := time.Now().Add(time.Hour)
	mock.ExpectQuery(find).WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).AddRow("u-1", expires))

	got, err := repo.Find(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if got.UserID != "u-1" || !got.Expires.Equal(expires) {
		t.Fatalf("unexpected token: %+v", got)
	}

	del := `(?s)^\s*DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token\s*=\s*\$1\s*$`
	mock.ExpectExec(del).WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "tok"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRefreshTokens_FindNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	find := `(?s)^\s*SELECT\s+user_id,\s*expires_at\s+FROM\s+refresh_tokens`
	mock.ExpectQuery(find).WithArgs("gone").WillReturnError(sql.ErrNoRows)

	_, err := NewPostgresRefreshTokenRepository(db).Find(context.Background(), "gone")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected common.ErrNotFound, got %v", err)
	}
}

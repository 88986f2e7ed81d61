package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.MonitorPingsOption(true),
	)
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestMigrate_UsesEmbeddedRoot(t *testing.T) {
	db, _ := newMock(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if gotDir != "." {
		t.Fatalf("expected dir '.', got %q", gotDir)
	}
}

func TestMigrate_Error(t *testing.T) {
	db, _ := newMock(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	err := Migrate(context.Background(), db)
	if err == nil || err.Error() != "goose up: boom" {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestPinger(t *testing.T) {
	db, mock := newMock(t)
	p := NewPinger(db)

	mock.ExpectPing()
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping error: %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("down"))
	if err := p.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
	if p.Name() != "postgres" {
		t.Fatalf("unexpected name %q", p.Name())
	}
}

package dbexec

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openMemDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)").Error; err != nil {
		t.Fatal(err)
	}
	return db
}

func TestExecAndQueryRoundTrip(t *testing.T) {
	db := openMemDB(t)
	exec, err := New(db, DialectSQLite)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := exec.Exec(ctx, "INSERT INTO widgets (id, name) VALUES ($1, $2)", 1, "cog"); err != nil {
		t.Fatal(err)
	}

	rr, err := exec.Query(ctx, "SELECT id, name FROM widgets WHERE id = $1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rr.Columns) != 2 || len(rr.Rows) != 1 {
		t.Fatalf("unexpected result shape: cols=%v rows=%v", rr.Columns, rr.Rows)
	}
}

func TestQueryRejectsArgCountMismatch(t *testing.T) {
	db := openMemDB(t)
	exec, err := New(db, DialectSQLite)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := exec.Query(context.Background(), "SELECT * FROM widgets WHERE id = $1"); err == nil {
		t.Fatal("expected error for missing argument")
	}
}

func TestNewRejectsUnsupportedDialect(t *testing.T) {
	db := openMemDB(t)
	if _, err := New(db, Dialect("oracle")); err == nil {
		t.Fatal("expected error for unsupported dialect")
	}
}

func TestTxCommitRollback(t *testing.T) {
	db := openMemDB(t)
	exec, err := New(db, DialectSQLite)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tx, err := exec.BeginTx(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO widgets (id, name) VALUES ($1, $2)", 2, "gear"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	rr, err := exec.Query(ctx, "SELECT id FROM widgets WHERE id = $1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rr.Rows) != 0 {
		t.Fatal("expected rollback to discard the inserted row")
	}
}

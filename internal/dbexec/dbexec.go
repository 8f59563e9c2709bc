// Package dbexec is the thin, gorm-backed collaborator behind the tenant
// runtime's Context.executeQuery/commit/rollback: given a whitelisted
// query's canonical $-numbered text and positional arguments, it runs the
// statement against whichever relational backend is configured and returns
// rows shaped the way the wire protocol's row-result envelope expects.
// Migrations, model registration, and caching — all present in the
// teacher's generic CRUD database layer — are out of scope here; a
// whitelist executor only ever runs pre-validated fingerprinted SQL.
package dbexec

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/sqlwhitelist/internal/wire"
	"gorm.io/gorm"
)

// Dialect selects the placeholder style and gorm driver a Config targets.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ErrUnsupportedDialect is returned by New for an unrecognized Dialect.
var ErrUnsupportedDialect = errors.New("unsupported database dialect")

// Executor runs canonical, whitelisted $-numbered SQL text against one
// configured backend.
type Executor struct {
	db      *gorm.DB
	dialect Dialect
}

// New wraps an already-opened *gorm.DB (via postgres.Open/mysql.Open/
// sqlite.Open — backend selection happens one layer up, in the CLI's
// dialect-selection path, mirroring the teacher's database/postgres and
// database/sqlite init packages; the teacher ships no database/mysql
// package, so the CLI opens a MySQL backend directly with
// gorm.io/driver/mysql instead) as an Executor for the given dialect.
func New(db *gorm.DB, dialect Dialect) (*Executor, error) {
	switch dialect {
	case DialectPostgres, DialectMySQL, DialectSQLite:
	default:
		return nil, errors.Wrapf(ErrUnsupportedDialect, "dialect=%s", dialect)
	}
	return &Executor{db: db, dialect: dialect}, nil
}

// rewritePlaceholders converts canonical $1,$2,... positional placeholders
// into the target dialect's native marker. Postgres already speaks $N;
// MySQL and SQLite use a single repeated "?".
func (e *Executor) rewritePlaceholders(text string) string {
	if e.dialect == DialectPostgres {
		return text
	}
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] != '$' {
			b.WriteByte(text[i])
			continue
		}
		j := i + 1
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(text[i])
			continue
		}
		b.WriteByte('?')
		i = j - 1
	}
	return b.String()
}

// Query runs text (canonical $-numbered SQL) with args in positional order
// and returns the result as a row-result envelope, the shape the session
// wire format carries back to the client.
func (e *Executor) Query(ctx context.Context, text string, args ...any) (*wire.RowResult, error) {
	if n := placeholderCount(text); n != len(args) {
		return nil, errors.Newf("query expects %d parameter(s), got %d", n, len(args))
	}
	rows, err := e.db.WithContext(ctx).Raw(e.rewritePlaceholders(text), args...).Rows()
	if err != nil {
		return nil, errors.Wrap(err, "executing query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "reading columns")
	}

	rr := &wire.RowResult{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		rr.Rows = append(rr.Rows, values)
	}
	return rr, rows.Err()
}

// Exec runs a non-query statement (e.g. a server-call's dynamic write) and
// returns the affected row count.
func (e *Executor) Exec(ctx context.Context, text string, args ...any) (int64, error) {
	if n := placeholderCount(text); n != len(args) {
		return 0, errors.Newf("statement expects %d parameter(s), got %d", n, len(args))
	}
	tx := e.db.WithContext(ctx).Exec(e.rewritePlaceholders(text), args...)
	if tx.Error != nil {
		return 0, errors.Wrap(tx.Error, "executing statement")
	}
	return tx.RowsAffected, nil
}

// Tx wraps an open transaction for a server-call site's beginTx/commit/
// rollback sequence.
type Tx struct {
	exec *Executor
	tx   *gorm.DB
}

// BeginTx opens a transaction scoped to ctx; callers must Commit or
// Rollback exactly once.
func (e *Executor) BeginTx(ctx context.Context) (*Tx, error) {
	tx := e.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, errors.Wrap(tx.Error, "beginning transaction")
	}
	return &Tx{exec: &Executor{db: tx, dialect: e.dialect}, tx: tx}, nil
}

func (t *Tx) Query(ctx context.Context, text string, args ...any) (*wire.RowResult, error) {
	return t.exec.Query(ctx, text, args...)
}

func (t *Tx) Exec(ctx context.Context, text string, args ...any) (int64, error) {
	return t.exec.Exec(ctx, text, args...)
}

func (t *Tx) Commit() error   { return errors.Wrap(t.tx.Commit().Error, "committing transaction") }
func (t *Tx) Rollback() error { return errors.Wrap(t.tx.Rollback().Error, "rolling back transaction") }

func (e *Executor) String() string {
	return fmt.Sprintf("dbexec.Executor{dialect=%s}", e.dialect)
}

func placeholderCount(text string) int {
	n := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '$' {
			continue
		}
		j := i + 1
		for j < len(text) && text[j] >= '0' && text[j] <= '9' {
			j++
		}
		if j > i+1 {
			if v, err := strconv.Atoi(text[i+1 : j]); err == nil && v > n {
				n = v
			}
			i = j - 1
		}
	}
	return n
}

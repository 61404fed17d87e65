// Package storage opens the bookkeeping database for the configured backend
// and executes dialect statements against it.
//
// Every driver error leaving this package has been classified: transient
// failures carry errdefs.ErrStoreUnavailable, uniqueness races on idempotent
// inserts are absorbed, and everything else is wrapped with the statement id.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
)

// Options selects and locates the backend.
type Options struct {
	Backend dialect.Kind
	// Path is the SQLite database file.
	Path string
	// DSN is the connection string for every other backend.
	DSN          string
	MaxOpenConns int
}

// DB is a database handle bound to one dialect.
type DB struct {
	sql     *sql.DB
	dialect *dialect.Dialect
}

// New binds an already opened handle to d. The caller keeps ownership of the
// driver registration.
func New(db *sql.DB, d *dialect.Dialect) *DB {
	return &DB{sql: db, dialect: d}
}

// Open opens the configured backend and bootstraps the schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	d, err := dialect.For(opts.Backend)
	if err != nil {
		return nil, err
	}

	var dsn string
	if d.Kind() == dialect.SQLite {
		dsn, err = prepareSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
	} else {
		if opts.DSN == "" {
			return nil, errdefs.InvalidArgument("storage.Open", "%s dsn is empty", d.Kind())
		}
		dsn = opts.DSN
	}

	raw, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Kind(), err)
	}
	if opts.MaxOpenConns > 0 {
		raw.SetMaxOpenConns(opts.MaxOpenConns)
	}

	db := New(raw, d)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := raw.PingContext(pctx); err != nil {
		_ = raw.Close()
		return nil, db.wrap("ping", err)
	}
	if err := db.Bootstrap(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	return Open(ctx, Options{Backend: dialect.SQLite, Path: path})
}

// prepareSQLite creates the database directory and returns a DSN carrying the
// per-connection pragmas. Pragmas set with Exec would only reach one pooled
// connection.
func prepareSQLite(path string) (string, error) {
	if path == "" {
		return "", errdefs.InvalidArgument("storage.Open", "sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create sqlite directory: %w", err)
	}
	if err := validateSQLiteFilesystem(path); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode(), nil
}

// Bootstrap creates tables, sequences and indexes if missing.
func (db *DB) Bootstrap(ctx context.Context) error {
	for _, stmt := range db.dialect.Schema() {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return db.wrap("bootstrap "+string(db.dialect.Kind()), err)
		}
	}
	return nil
}

// Dialect returns the dialect the handle was opened with.
func (db *DB) Dialect() *dialect.Dialect { return db.dialect }

// SQL exposes the underlying handle.
func (db *DB) SQL() *sql.DB { return db.sql }

func (db *DB) Close() error { return db.sql.Close() }

// Exec runs a statement and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, id dialect.StatementID, args map[string]any) (int64, error) {
	st, bound, err := db.prepare(id, args)
	if err != nil {
		return 0, err
	}
	res, err := db.sql.ExecContext(ctx, st.Text, bound...)
	if err != nil {
		return 0, db.wrap(string(id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, db.wrap(string(id), err)
	}
	return n, nil
}

// InsertIfAbsent runs a conditional insert. It reports whether this call
// created the row. A uniqueness violation from a racing writer means the row
// exists and is not an error.
func (db *DB) InsertIfAbsent(ctx context.Context, id dialect.StatementID, args map[string]any) (bool, error) {
	st, bound, err := db.prepare(id, args)
	if err != nil {
		return false, err
	}
	res, err := db.sql.ExecContext(ctx, st.Text, bound...)
	if err != nil {
		if db.dialect.Classify(err) == dialect.ClassDuplicate {
			return false, nil
		}
		return false, db.wrap(string(id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.wrap(string(id), err)
	}
	return n > 0, nil
}

// LookupID runs a single-column id query. Zero rows is (0, false, nil); with
// several rows the first one wins.
func (db *DB) LookupID(ctx context.Context, id dialect.StatementID, args map[string]any) (int64, bool, error) {
	var out int64
	found, err := db.QueryRow(ctx, id, args, &out)
	if err != nil || !found {
		return 0, false, err
	}
	return out, true, nil
}

// QueryRow scans the first result row into dest and reports whether a row
// was present.
func (db *DB) QueryRow(ctx context.Context, id dialect.StatementID, args map[string]any, dest ...any) (bool, error) {
	st, bound, err := db.prepare(id, args)
	if err != nil {
		return false, err
	}
	err = db.sql.QueryRowContext(ctx, st.Text, bound...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.wrap(string(id), err)
	}
	return true, nil
}

// Query runs a statement and calls scan once per result row.
func (db *DB) Query(ctx context.Context, id dialect.StatementID, args map[string]any, scan func(*sql.Rows) error) error {
	st, bound, err := db.prepare(id, args)
	if err != nil {
		return err
	}
	rows, err := db.sql.QueryContext(ctx, st.Text, bound...)
	if err != nil {
		return db.wrap(string(id), err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("%s: scan: %w", id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return db.wrap(string(id), err)
	}
	return nil
}

// Tx is a transaction bound to the handle's dialect.
type Tx struct {
	tx *sql.Tx
	db *DB
}

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return db.wrap("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Tx{tx: tx, db: db}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return db.wrap("commit tx", err)
	}
	return nil
}

// Exec runs a statement inside the transaction and returns the number of
// affected rows.
func (t *Tx) Exec(ctx context.Context, id dialect.StatementID, args map[string]any) (int64, error) {
	st, bound, err := t.db.prepare(id, args)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, st.Text, bound...)
	if err != nil {
		return 0, t.db.wrap(string(id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, t.db.wrap(string(id), err)
	}
	return n, nil
}

func (db *DB) prepare(id dialect.StatementID, args map[string]any) (dialect.Statement, []any, error) {
	st, err := db.dialect.Statement(id)
	if err != nil {
		return dialect.Statement{}, nil, err
	}
	bound, err := st.Bind(args)
	if err != nil {
		return dialect.Statement{}, nil, err
	}
	return st, bound, nil
}

func (db *DB) wrap(op string, err error) error {
	if db.dialect.Classify(err) == dialect.ClassUnavailable {
		return errdefs.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Package sqlite implements the repository interfaces on SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no C compiler needed, and the
// binary cross-compiles like any other Go program.
//
// WHY sqlx?
// sqlx sits on top of database/sql and adds struct scanning by `db` tags
// (GetContext / SelectContext) and named parameters (NamedExecContext).
// The connection pool, transactions and driver are still database/sql's.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/ivr-board/internal/apperror"
)

// DB wraps a sqlx connection pool and implements
// repository.UserRepository and repository.PostRepository.
type DB struct {
	conn *sqlx.DB
}

// New opens the database at dbPath and creates the schema if needed.
//
// dbPath examples:
//   - "ivr.db"   → file-based database (persistent)
//   - ":memory:" → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	// "sqlite" is the driver name registered by modernc.org/sqlite.
	conn, err := sqlx.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" gets its own empty database, so the
	// pool must never open a second one.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// dsn adds per-connection pragmas. A PRAGMA run through Exec would only
// reach whichever pooled connection executed it.
//
//   - foreign_keys(1): posts.user_id references users.id
//   - busy_timeout(5000): wait for a competing writer instead of failing
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database still answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to
// run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			nickname      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			surname       TEXT NOT NULL DEFAULT '',
			user_group    TEXT NOT NULL DEFAULT '',
			check_email   INTEGER NOT NULL DEFAULT 0,
			href_vk       TEXT NOT NULL DEFAULT '-',
			href_telegram TEXT NOT NULL DEFAULT '-',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// One table for all four post types. Columns a type does not use
	// are NULL.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS posts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       INTEGER NOT NULL REFERENCES users(id),
			owner_name    TEXT NOT NULL DEFAULT '',
			owner_surname TEXT NOT NULL DEFAULT '',
			post_type     INTEGER NOT NULL CHECK (post_type BETWEEN 1 AND 4),
			project_type  TEXT,
			subject       TEXT,
			problem_type  TEXT,
			name          TEXT,
			demands       TEXT,
			description   TEXT,
			href_vk       TEXT,
			href_telegram TEXT,
			href_google   TEXT,
			href_quiz     TEXT,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts(user_id);
		CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating posts table: %w", err)
	}

	return nil
}

// uniqueViolation returns the "table.column" named by a UNIQUE constraint
// failure, or "" if err is something else.
func uniqueViolation(err error) string {
	var sqlErr *sqlitedriver.Error
	if !errors.As(err, &sqlErr) {
		return ""
	}
	// "UNIQUE constraint failed: users.email"
	msg := sqlErr.Error()
	// Without extended result codes only the primary code is reported.
	if sqlErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		!(sqlErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(msg, "UNIQUE")) {
		return ""
	}
	if i := strings.LastIndex(msg, "failed: "); i >= 0 {
		return strings.TrimSpace(strings.SplitN(msg[i+len("failed: "):], " ", 2)[0])
	}
	return "unknown"
}

// userConflict maps a UNIQUE violation on users to the same error the
// services produce for a taken nickname or email.
func userConflict(err error) error {
	switch col := uniqueViolation(err); {
	case col == "":
		return nil
	case strings.HasSuffix(col, "nickname"):
		return apperror.Conflict("nickname", "nickname taken")
	case strings.HasSuffix(col, "email"):
		return apperror.Conflict("email", "email taken")
	default:
		return apperror.Conflict("", "already taken")
	}
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

// migration represents a single schema migration step.
type migration struct {
	version int
	sql     string
}

// migrations holds all schema migrations in order. Each migration is applied
// exactly once, tracked by the schema_migrations table.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE notification_templates (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    code       TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'enabled',
    channels   TEXT NOT NULL DEFAULT '[]',
    variables  TEXT NOT NULL DEFAULT '[]',
    content    TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);
CREATE INDEX idx_notification_templates_code ON notification_templates(code, status, id);

CREATE TABLE users (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    mobile     TEXT NOT NULL DEFAULT '',
    role       TEXT NOT NULL DEFAULT 'user',
    opt_outs   TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL
);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE notification_deliveries (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    notifiable_type TEXT NOT NULL,
    notifiable_id   INTEGER NOT NULL,
    template_id     INTEGER NOT NULL,
    channel         TEXT NOT NULL,
    data            TEXT NOT NULL DEFAULT '{}',
    status          TEXT NOT NULL DEFAULT 'pending',
    message         TEXT NOT NULL DEFAULT '',
    sent_at         DATETIME,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);
CREATE INDEX idx_notification_deliveries_notifiable
    ON notification_deliveries(notifiable_type, notifiable_id, id);
CREATE INDEX idx_notification_deliveries_status ON notification_deliveries(status, id);
`,
	},
}

// pragmas are applied to every connection opened by NewSQLiteDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA synchronous=NORMAL",
}

// NewSQLiteDB opens (or creates) the SQLite database at dbPath, applies the
// connection pragmas and runs pending schema migrations. The bool result
// reports whether the schema was created by this call.
func NewSQLiteDB(dbPath string) (*sql.DB, bool, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, false, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, false, fmt.Errorf("opening database: %w", err)
	}

	// Delivery workers write concurrently; one connection keeps SQLite from
	// returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	fresh, err := prepare(context.Background(), db)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			log.Printf("closing database after setup error: %v", cerr)
		}
		return nil, false, err
	}
	return db, fresh, nil
}

func prepare(ctx context.Context, db *sql.DB) (bool, error) {
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return false, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	fresh, err := runMigrations(ctx, db)
	if err != nil {
		return false, fmt.Errorf("running migrations: %w", err)
	}
	return fresh, nil
}

// runMigrations applies every migration newer than the recorded schema
// version. The bool result is true when the initial schema was created.
func runMigrations(ctx context.Context, db *sql.DB) (bool, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return false, fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return false, fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := migrate(ctx, db, m); err != nil {
			return false, err
		}
	}
	return current == 0, nil
}

// migrate applies m and records it in one transaction.
func migrate(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting migration %d: %w", m.version, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("rolling back migration %d: %v", m.version, rbErr)
		}
	}()

	if _, err = tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("migration %d: %w", m.version, err)
	}
	if _, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("recording migration %d: %w", m.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", m.version, err)
	}
	return nil
}

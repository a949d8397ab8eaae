package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite database and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database dir: %w", err)
	}

	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=1", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL CHECK(kind IN ('upload','chat','quiz','remove')),
			detail TEXT NOT NULL DEFAULT '',
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_session ON activity_log(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_activity_created ON activity_log(created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return nil
}

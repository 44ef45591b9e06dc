package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewConnection opens (or creates) the SQLite database. The pragmas the
// pipeline relies on ride in the DSN so the driver applies them to every
// pooled connection, not just the first one: foreign_keys carries the cascade
// deletes, WAL lets collector and dispatcher ticks interleave reads and
// writes, and busy_timeout replaces immediate SQLITE_BUSY errors.
func NewConnection(path string) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const createSQLiteTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
    id              TEXT PRIMARY KEY,
    type            TEXT NOT NULL,
    blocking        INTEGER NOT NULL,
    duration_millis INTEGER NOT NULL,
    memory_usage    INTEGER,
    status          TEXT NOT NULL,
    submitted_at    DATETIME NOT NULL,
    started_at      DATETIME,
    finished_at     DATETIME,
    result          INTEGER
)`

var sqliteDialect = dialect{
	name:        "sqlite",
	schema:      createSQLiteTasksTable,
	noLimit:     "-1",
	isDuplicate: isSQLiteDuplicate,
}

// connPragmas are applied to every pooled connection of a file database.
const connPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?" + connPragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	return newSQLStore(db, sqliteDialect)
}

func isSQLiteDuplicate(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

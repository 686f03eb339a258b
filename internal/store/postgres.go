package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const createPostgresTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
    id              TEXT PRIMARY KEY,
    type            TEXT NOT NULL,
    blocking        BOOLEAN NOT NULL,
    duration_millis BIGINT NOT NULL,
    memory_usage    BIGINT,
    status          TEXT NOT NULL,
    submitted_at    TIMESTAMPTZ NOT NULL,
    started_at      TIMESTAMPTZ,
    finished_at     TIMESTAMPTZ,
    result          BIGINT
)`

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

var postgresDialect = dialect{
	name:        "postgres",
	schema:      createPostgresTasksTable,
	numbered:    true,
	noLimit:     "ALL",
	isDuplicate: isPostgresDuplicate,
}

// NewPostgresStore connects to PostgreSQL using dsn and runs migrations.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return newSQLStore(db, postgresDialect)
}

func isPostgresDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

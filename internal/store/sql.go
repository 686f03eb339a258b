package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/sisyphus/internal/model"
)

const taskColumns = `id, type, blocking, duration_millis, memory_usage, status,
	submitted_at, started_at, finished_at, result`

const createSubmittedAtIndex = `CREATE INDEX IF NOT EXISTS tasks_submitted_at ON tasks (submitted_at)`

// dialect captures what differs between the SQL databases SQLStore runs on.
type dialect struct {
	name        string
	schema      string
	numbered    bool   // $1-style placeholders instead of ?
	noLimit     string // LIMIT value meaning "all rows"
	isDuplicate func(error) bool
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLStore)(nil)

// SQLStore implements Store on a relational database.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	if _, err := db.Exec(d.schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create %s tasks table: %w", d.name, err)
	}
	if _, err := db.Exec(createSubmittedAtIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("create submitted_at index: %w", err)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertTask inserts a new task record.
func (s *SQLStore) InsertTask(ctx context.Context, t *model.Task) error {
	var memUsage *int64
	if t.Params.MemoryUsage != nil {
		v := int64(*t.Params.MemoryUsage)
		memUsage = &v
	}

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, string(t.Type), t.Blocking, int64(t.Params.DurationMillis), memUsage, string(t.Status),
		t.SubmittedAt.UTC(), utcPtr(t.StartedAt), utcPtr(t.FinishedAt), checksumToInt(t.Result),
	)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return fmt.Errorf("insert task %s: %w", t.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// UpdateTask applies a partial update. The status filter in the WHERE clause
// makes the transition check and the write a single atomic statement.
func (s *SQLStore) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	from, ok := model.Predecessor(u.Status)
	if !ok {
		return fmt.Errorf("%w: nothing transitions to %q", ErrInvalidTransition, u.Status)
	}

	sets := []string{"status = ?"}
	args := []any{string(u.Status)}
	if u.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, u.StartedAt.UTC())
	}
	if u.FinishedAt != nil {
		sets = append(sets, "finished_at = ?")
		args = append(args, u.FinishedAt.UTC())
	}
	if u.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, checksumToInt(u.Result))
	}
	args = append(args, id, string(from))

	result, err := s.db.ExecContext(ctx, s.rebind(
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ? AND status = ?"), args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, s.rebind("SELECT status FROM tasks WHERE id = ?"), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get task status: %w", err)
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, u.Status)
}

// GetTask retrieves a task by id.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns a page of tasks ordered by submitted_at DESC, along with
// the total count of all tasks. A limit of zero or less returns every task.
func (s *SQLStore) ListTasks(ctx context.Context, limit, offset int) ([]*model.Task, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY submitted_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	} else {
		query += " LIMIT " + s.dialect.noLimit + " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := tx.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, total, nil
}

// ForEachTask streams every task row to fn.
func (s *SQLStore) ForEachTask(ctx context.Context, fn func(*model.Task) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks`)
	if err != nil {
		return fmt.Errorf("scan tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return fmt.Errorf("scan task: %w", err)
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate tasks: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t          model.Task
		typ        string
		status     string
		duration   int64
		memUsage   *int64
		startedAt  *time.Time
		finishedAt *time.Time
		result     *int64
	)
	if err := row.Scan(
		&t.ID, &typ, &t.Blocking, &duration, &memUsage, &status,
		&t.SubmittedAt, &startedAt, &finishedAt, &result,
	); err != nil {
		return nil, err
	}

	t.Type = model.TaskType(typ)
	t.Status = model.TaskStatus(status)
	t.Params.DurationMillis = uint64(duration)
	if memUsage != nil {
		v := uint64(*memUsage)
		t.Params.MemoryUsage = &v
	}
	t.SubmittedAt = t.SubmittedAt.UTC()
	t.StartedAt = utcPtr(startedAt)
	t.FinishedAt = utcPtr(finishedAt)
	t.Result = intToChecksum(result)
	return &t, nil
}

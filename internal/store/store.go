package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/sisyphus/internal/model"
)

var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")

	// ErrDuplicateKey is returned when inserting a task whose id already exists.
	ErrDuplicateKey = errors.New("duplicate task id")

	// ErrInvalidTransition is returned when a status change skips or reverses a stage.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TaskUpdate is a partial update of a task. Nil fields are left unchanged.
type TaskUpdate struct {
	Status     model.TaskStatus
	StartedAt  *time.Time
	FinishedAt *time.Time
	Result     *uint64
}

// Store defines the persistence operations for tasks. Implementations apply
// each update atomically per task.
type Store interface {
	InsertTask(ctx context.Context, t *model.Task) error
	UpdateTask(ctx context.Context, id string, u TaskUpdate) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, limit, offset int) ([]*model.Task, int, error)

	// ForEachTask streams every stored task to fn in no particular order and
	// stops at the first error fn returns. fn must not call back into the store.
	ForEachTask(ctx context.Context, fn func(*model.Task) error) error

	Close() error
}

// checksumToInt stores a checksum's bit pattern in a signed 64-bit column.
func checksumToInt(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}

func intToChecksum(v *int64) *uint64 {
	if v == nil {
		return nil
	}
	u := uint64(*v)
	return &u
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

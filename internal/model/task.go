package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidType is returned when a task request names an unknown task type.
	ErrInvalidType = errors.New("invalid task type")

	// ErrInvalidParams is returned when task parameters are out of range.
	ErrInvalidParams = errors.New("invalid task params")
)

// TaskType selects which simulator runs a task.
type TaskType string

// Task type constants. The values are the wire representation.
const (
	TypeCPU    TaskType = "Cpu"
	TypeMemory TaskType = "Memory"
	TypeIO     TaskType = "Io"
)

// TaskTypes lists every known task type.
var TaskTypes = []TaskType{TypeCPU, TypeMemory, TypeIO}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TypeCPU, TypeMemory, TypeIO:
		return true
	}
	return false
}

// TaskStatus is the lifecycle stage of a task.
type TaskStatus string

// Task status constants.
const (
	StatusPending  TaskStatus = "Pending"
	StatusRunning  TaskStatus = "Running"
	StatusFinished TaskStatus = "Finished"
)

// DefaultMemoryUsage is the buffer size used by memory tasks that do not set one.
const DefaultMemoryUsage uint64 = 1024 * 1024

// MaxMemoryUsage is the largest buffer a memory task may request (64 GiB).
const MaxMemoryUsage uint64 = 64 << 30

// MaxDurationMillis is the longest duration representable as a time.Duration.
const MaxDurationMillis uint64 = math.MaxInt64 / uint64(time.Millisecond)

// validTransitions maps each status to the single status it may advance to.
var validTransitions = map[TaskStatus]TaskStatus{
	StatusPending: StatusRunning,
	StatusRunning: StatusFinished,
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to TaskStatus) bool {
	next, ok := validTransitions[from]
	return ok && next == to
}

// Predecessor returns the only status from which to may be reached.
func Predecessor(to TaskStatus) (TaskStatus, bool) {
	for from, next := range validTransitions {
		if next == to {
			return from, true
		}
	}
	return "", false
}

// TaskParams holds the workload parameters of a task.
type TaskParams struct {
	DurationMillis uint64  `json:"duration_millis"`
	MemoryUsage    *uint64 `json:"memory_usage"`
}

// Duration returns the requested workload duration, saturating at the largest
// time.Duration.
func (p TaskParams) Duration() time.Duration {
	if p.DurationMillis > MaxDurationMillis {
		return math.MaxInt64
	}
	return time.Duration(p.DurationMillis) * time.Millisecond
}

// Validate checks that the parameters can be simulated.
func (p TaskParams) Validate() error {
	if p.DurationMillis > MaxDurationMillis {
		return fmt.Errorf("%w: duration_millis %d exceeds %d", ErrInvalidParams, p.DurationMillis, MaxDurationMillis)
	}
	if p.MemoryUsage != nil && *p.MemoryUsage > MaxMemoryUsage {
		return fmt.Errorf("%w: memory_usage %d exceeds %d", ErrInvalidParams, *p.MemoryUsage, MaxMemoryUsage)
	}
	return nil
}

// MemoryBytes returns the requested buffer size, falling back to DefaultMemoryUsage.
func (p TaskParams) MemoryBytes() uint64 {
	if p.MemoryUsage == nil {
		return DefaultMemoryUsage
	}
	return *p.MemoryUsage
}

// NewTask is a request to submit a task.
type NewTask struct {
	Type     TaskType   `json:"type"`
	Blocking bool       `json:"blocking"`
	Params   TaskParams `json:"params"`
}

// Validate checks the request before anything is persisted.
func (n NewTask) Validate() error {
	if !n.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, n.Type)
	}
	return n.Params.Validate()
}

// Task is one unit of simulated work tracked through Pending, Running and Finished.
type Task struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	Blocking    bool       `json:"blocking"`
	Params      TaskParams `json:"params"`
	Status      TaskStatus `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	Result      *uint64    `json:"result"`
}

// Runtime is the time between start and finish.
func (t *Task) Runtime() (time.Duration, bool) {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0, false
	}
	return t.FinishedAt.Sub(*t.StartedAt), true
}

// E2ETime is the time between submission and finish.
func (t *Task) E2ETime() (time.Duration, bool) {
	if t.FinishedAt == nil {
		return 0, false
	}
	return t.FinishedAt.Sub(t.SubmittedAt), true
}

// WaitTime is the time between submission and start.
func (t *Task) WaitTime() (time.Duration, bool) {
	if t.StartedAt == nil {
		return 0, false
	}
	return t.StartedAt.Sub(t.SubmittedAt), true
}

// TasksStats is an aggregate over every stored task. It is recomputed on request
// and never persisted.
type TasksStats struct {
	Total             int            `json:"total"`
	Pending           int            `json:"pending"`
	Running           int            `json:"running"`
	Finished          int            `json:"finished"`
	Types             map[string]int `json:"types"`
	AvgRuntimeMillis  float64        `json:"avg_runtime_millis"`
	AvgE2ETimeMillis  float64        `json:"avg_e2e_time_millis"`
	AvgWaitTimeMillis float64        `json:"avg_wait_time_millis"`
}

// TaskEvent is a persisted lifecycle transition of a task.
type TaskEvent struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
	At     time.Time  `json:"at"`
}

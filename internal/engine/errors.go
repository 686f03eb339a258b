package engine

import "fmt"

// Stage names the lifecycle transition whose persistence failed.
type Stage string

// Execution stages.
const (
	StageStart  Stage = "start"
	StageFinish Stage = "finish"
)

// SubmissionError is returned when the pending record could not be written.
// The task never executes.
type SubmissionError struct {
	TaskID string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit task %s: %v", e.TaskID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ExecutionError is returned when a lifecycle transition could not be persisted.
//
// A start-stage failure abandons the task: it stays pending in the store and
// its simulator never runs. A finish-stage failure means the work completed but
// its result may not be durable.
type ExecutionError struct {
	TaskID string
	Stage  Stage
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute task %s: persist %s: %v", e.TaskID, e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

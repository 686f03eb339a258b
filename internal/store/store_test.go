package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/sisyphus/internal/model"
)

// storeSuite runs the behaviour every Store implementation must share.
func storeSuite(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"InsertAndGet", testInsertAndGet},
		{"InsertDuplicate", testInsertDuplicate},
		{"GetNotFound", testGetNotFound},
		{"Lifecycle", testLifecycle},
		{"UpdateNotFound", testUpdateNotFound},
		{"InvalidTransitions", testInvalidTransitions},
		{"ListOrderingAndPagination", testListOrderingAndPagination},
		{"ListEmpty", testListEmpty},
		{"ForEachTask", testForEachTask},
		{"ForEachTaskStopsOnError", testForEachTaskStopsOnError},
		{"ConcurrentInserts", testConcurrentInserts},
		{"LargeChecksum", testLargeChecksum},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func makeTestTask() *model.Task {
	return &model.Task{
		ID:          model.NewID(),
		Type:        model.TypeIO,
		Blocking:    true,
		Params:      model.TaskParams{DurationMillis: 250},
		Status:      model.StatusPending,
		SubmittedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrUint64(v uint64) *uint64    { return &v }

func testInsertAndGet(t *testing.T, s Store) {
	ctx := context.Background()
	task := makeTestTask()
	task.Type = model.TypeMemory
	task.Params.MemoryUsage = ptrUint64(2048)

	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}

	if got.ID != task.ID {
		t.Errorf("ID = %q, want %q", got.ID, task.ID)
	}
	if got.Type != model.TypeMemory {
		t.Errorf("Type = %q, want %q", got.Type, model.TypeMemory)
	}
	if !got.Blocking {
		t.Error("Blocking = false, want true")
	}
	if got.Params.DurationMillis != 250 {
		t.Errorf("DurationMillis = %d, want 250", got.Params.DurationMillis)
	}
	if got.Params.MemoryUsage == nil || *got.Params.MemoryUsage != 2048 {
		t.Errorf("MemoryUsage = %v, want 2048", got.Params.MemoryUsage)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusPending)
	}
	if !got.SubmittedAt.Equal(task.SubmittedAt) {
		t.Errorf("SubmittedAt = %v, want %v", got.SubmittedAt, task.SubmittedAt)
	}
	if got.StartedAt != nil || got.FinishedAt != nil || got.Result != nil {
		t.Errorf("pending task has started_at=%v finished_at=%v result=%v", got.StartedAt, got.FinishedAt, got.Result)
	}
}

func testInsertDuplicate(t *testing.T, s Store) {
	ctx := context.Background()
	task := makeTestTask()

	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	err := s.InsertTask(ctx, task)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("second InsertTask error = %v, want ErrDuplicateKey", err)
	}
}

func testGetNotFound(t *testing.T, s Store) {
	_, err := s.GetTask(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask error = %v, want ErrNotFound", err)
	}
}

func testLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	task := makeTestTask()
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	started := task.SubmittedAt.Add(5 * time.Millisecond)
	if err := s.UpdateTask(ctx, task.ID, TaskUpdate{Status: model.StatusRunning, StartedAt: &started}); err != nil {
		t.Fatalf("pending→running: %v", err)
	}
	got, _ := s.GetTask(ctx, task.ID)
	if got.Status != model.StatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusRunning)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt != nil || got.Result != nil {
		t.Error("running task has finished_at or result set")
	}

	finished := started.Add(250 * time.Millisecond)
	update := TaskUpdate{Status: model.StatusFinished, FinishedAt: &finished, Result: ptrUint64(42)}
	if err := s.UpdateTask(ctx, task.ID, update); err != nil {
		t.Fatalf("running→finished: %v", err)
	}
	got, _ = s.GetTask(ctx, task.ID)
	if got.Status != model.StatusFinished {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusFinished)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt changed by finish update: %v", got.StartedAt)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
	if got.Result == nil || *got.Result != 42 {
		t.Errorf("Result = %v, want 42", got.Result)
	}
	if d, ok := got.Runtime(); !ok || d != 250*time.Millisecond {
		t.Errorf("Runtime() = %v, %v; want 250ms, true", d, ok)
	}
}

func testUpdateNotFound(t *testing.T, s Store) {
	err := s.UpdateTask(context.Background(), "nonexistent", TaskUpdate{
		Status:    model.StatusRunning,
		StartedAt: ptrTime(time.Now()),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask error = %v, want ErrNotFound", err)
	}
}

func testInvalidTransitions(t *testing.T, s Store) {
	ctx := context.Background()

	tests := []struct {
		name string
		from model.TaskStatus
		to   model.TaskStatus
	}{
		{"pending→finished", model.StatusPending, model.StatusFinished},
		{"pending→pending", model.StatusPending, model.StatusPending},
		{"running→running", model.StatusRunning, model.StatusRunning},
		{"finished→running", model.StatusFinished, model.StatusRunning},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task := makeTestTask()
			task.Status = tc.from
			if err := s.InsertTask(ctx, task); err != nil {
				t.Fatalf("InsertTask: %v", err)
			}

			err := s.UpdateTask(ctx, task.ID, TaskUpdate{Status: tc.to})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("got error %v, want ErrInvalidTransition", err)
			}

			got, _ := s.GetTask(ctx, task.ID)
			if got.Status != tc.from {
				t.Errorf("Status = %q after rejected update, want %q", got.Status, tc.from)
			}
		})
	}
}

func testListOrderingAndPagination(t *testing.T, s Store) {
	ctx := context.Background()

	var ids []string
	for i := range 5 {
		task := makeTestTask()
		task.SubmittedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if err := s.InsertTask(ctx, task); err != nil {
			t.Fatalf("InsertTask[%d]: %v", i, err)
		}
		ids = append(ids, task.ID)
	}

	all, total, err := s.ListTasks(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if total != 5 || len(all) != 5 {
		t.Fatalf("total = %d, len = %d; want 5, 5", total, len(all))
	}
	// Newest first.
	for i, task := range all {
		if want := ids[len(ids)-1-i]; task.ID != want {
			t.Errorf("all[%d].ID = %q, want %q", i, task.ID, want)
		}
	}

	page, total, err := s.ListTasks(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListTasks page: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("len(page) = %d, want 2", len(page))
	}
	if page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Errorf("page = [%s %s], want [%s %s]", page[0].ID, page[1].ID, ids[2], ids[1])
	}

	tail, _, err := s.ListTasks(ctx, 0, 3)
	if err != nil {
		t.Fatalf("ListTasks offset only: %v", err)
	}
	if len(tail) != 2 {
		t.Errorf("len(tail) = %d, want 2", len(tail))
	}
}

func testListEmpty(t *testing.T, s Store) {
	tasks, total, err := s.ListTasks(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %v, want none", tasks)
	}
}

func testForEachTask(t *testing.T, s Store) {
	ctx := context.Background()
	want := make(map[string]bool)
	for range 4 {
		task := makeTestTask()
		if err := s.InsertTask(ctx, task); err != nil {
			t.Fatalf("InsertTask: %v", err)
		}
		want[task.ID] = true
	}

	seen := make(map[string]bool)
	err := s.ForEachTask(ctx, func(task *model.Task) error {
		seen[task.ID] = true
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachTask: %v", err)
	}
	if len(seen) != len(want) {
		t.Errorf("visited %d tasks, want %d", len(seen), len(want))
	}
	for id := range want {
		if !seen[id] {
			t.Errorf("task %s not visited", id)
		}
	}
}

func testForEachTaskStopsOnError(t *testing.T, s Store) {
	ctx := context.Background()
	for range 3 {
		if err := s.InsertTask(ctx, makeTestTask()); err != nil {
			t.Fatalf("InsertTask: %v", err)
		}
	}

	stop := errors.New("stop")
	calls := 0
	err := s.ForEachTask(ctx, func(*model.Task) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("ForEachTask error = %v, want stop", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func testConcurrentInserts(t *testing.T, s Store) {
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Go(func() {
			task := makeTestTask()
			if err := s.InsertTask(ctx, task); err != nil {
				errs <- fmt.Errorf("InsertTask[%d]: %w", i, err)
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	_, total, err := s.ListTasks(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if total != 20 {
		t.Errorf("total = %d, want 20", total)
	}
}

func testLargeChecksum(t *testing.T, s Store) {
	ctx := context.Background()
	task := makeTestTask()
	task.Status = model.StatusRunning
	task.StartedAt = ptrTime(task.SubmittedAt)
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	const big = uint64(1<<63 + 12345)
	err := s.UpdateTask(ctx, task.ID, TaskUpdate{
		Status:     model.StatusFinished,
		FinishedAt: ptrTime(task.SubmittedAt.Add(time.Second)),
		Result:     ptrUint64(big),
	})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.Result == nil || *got.Result != big {
		t.Errorf("Result = %v, want %d", got.Result, big)
	}
}

package repo

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/piper/internal/domain"
)

// Тест требует PostgreSQL: PIPER_TEST_DB_URL=postgres://... go test ./internal/repo
func TestRecorder_Postgres(t *testing.T) {
	dsn := os.Getenv("PIPER_TEST_DB_URL")
	if dsn == "" {
		t.Skip("PIPER_TEST_DB_URL is not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}

	rec := NewRecorder(pool)
	run := domain.NewRun("recorder-test", map[string]any{"env": "test"}, "cli")
	run.MarkRunning()
	if err := rec.RunStarted(ctx, run); err != nil {
		t.Fatalf("run started: %v", err)
	}

	// Задача, упавшая на валидации, сохраняется одной записью
	invalid := domain.NewTaskRun(run.ID, "invalid", domain.TaskTypeHTTP)
	invalid.MarkFailed(nil, "missing url")
	if err := rec.TaskFinished(ctx, invalid); err != nil {
		t.Fatalf("task finished: %v", err)
	}

	tr := domain.NewTaskRun(run.ID, "build", domain.TaskTypeCmd)
	tr.MarkRunning()
	if err := rec.TaskStarted(ctx, tr); err != nil {
		t.Fatalf("task started: %v", err)
	}
	tr.MarkSucceeded(map[string]any{"stdout": "ok\n", "exit_code": float64(0)})
	if err := rec.TaskFinished(ctx, tr); err != nil {
		t.Fatalf("task finished: %v", err)
	}

	run.MarkSucceeded()
	if err := rec.RunFinished(ctx, run); err != nil {
		t.Fatalf("run finished: %v", err)
	}

	stored, err := rec.Runs.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.Status != domain.RunStatusSucceeded || stored.Params["env"] != "test" || stored.Trigger != "cli" {
		t.Errorf("unexpected run: %+v", stored)
	}

	tasks, err := rec.Tasks.ListByRunID(ctx, run.ID)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 task runs, got %d", len(tasks))
	}
	if tasks[0].TaskName != "build" || tasks[0].Fields["stdout"] != "ok\n" {
		t.Errorf("unexpected task run: %+v", tasks[0])
	}
	if tasks[1].Status != domain.TaskStatusFailed || tasks[1].Error != "missing url" {
		t.Errorf("unexpected task run: %+v", tasks[1])
	}

	runs, err := rec.Runs.List(ctx, RunFilter{Pipeline: "recorder-test", Limit: 1})
	if err != nil || len(runs) != 1 || runs[0].ID != run.ID {
		t.Errorf("list should return latest run: %v, %v", runs, err)
	}

	if _, err := rec.Runs.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

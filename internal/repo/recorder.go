package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/piper/internal/domain"
)

// Recorder сохраняет историю выполнения в PostgreSQL.
// Реализует orchestrator.Recorder.
type Recorder struct {
	Runs  *RunRepo
	Tasks *TaskRunRepo
}

// NewRecorder создаёт Recorder поверх пула.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{
		Runs:  NewRunRepo(pool),
		Tasks: NewTaskRunRepo(pool),
	}
}

// RunStarted создаёт запись run.
func (r *Recorder) RunStarted(ctx context.Context, run *domain.Run) error {
	return r.Runs.Create(ctx, run)
}

// TaskStarted сохраняет задачу в статусе RUNNING.
func (r *Recorder) TaskStarted(ctx context.Context, tr *domain.TaskRun) error {
	return r.Tasks.Save(ctx, tr)
}

// TaskFinished сохраняет итог задачи.
func (r *Recorder) TaskFinished(ctx context.Context, tr *domain.TaskRun) error {
	return r.Tasks.Save(ctx, tr)
}

// RunFinished сохраняет итог run.
func (r *Recorder) RunFinished(ctx context.Context, run *domain.Run) error {
	return r.Runs.Update(ctx, run)
}

package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/piper/internal/domain"
)

// TaskRunRepo — репозиторий выполнений задач.
type TaskRunRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRunRepo создаёт новый TaskRunRepo.
func NewTaskRunRepo(pool *pgxpool.Pool) *TaskRunRepo {
	return &TaskRunRepo{pool: pool}
}

// Save создаёт запись или обновляет существующую.
//
// Задача, не прошедшая валидацию, сразу попадает в FAILED без
// промежуточного RUNNING, поэтому первая запись может быть финальной.
func (r *TaskRunRepo) Save(ctx context.Context, tr *domain.TaskRun) error {
	fieldsJSON, err := json.Marshal(tr.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query := `
		INSERT INTO task_runs (id, run_id, task, type, status, fields, started_at, finished_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, fields = EXCLUDED.fields,
		    started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at,
		    error = EXCLUDED.error
	`
	_, err = r.pool.Exec(ctx, query,
		tr.ID,
		tr.RunID,
		tr.TaskName,
		tr.Type,
		tr.Status,
		fieldsJSON,
		tr.StartedAt,
		tr.FinishedAt,
		nullString(tr.Error),
	)
	if err != nil {
		return fmt.Errorf("save task run: %w", err)
	}
	return nil
}

// taskRow — строка task_runs.
type taskRow struct {
	ID         uuid.UUID  `db:"id"`
	RunID      uuid.UUID  `db:"run_id"`
	Task       string     `db:"task"`
	Type       string     `db:"type"`
	Status     string     `db:"status"`
	Fields     []byte     `db:"fields"`
	StartedAt  *time.Time `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Error      *string    `db:"error"`
}

// ListByRunID возвращает задачи run в порядке запуска; пропущенные
// задачи без StartedAt идут последними.
func (r *TaskRunRepo) ListByRunID(ctx context.Context, runID uuid.UUID) ([]domain.TaskRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, run_id, task, type, status, fields, started_at, finished_at, error
		FROM task_runs
		WHERE run_id = $1
		ORDER BY started_at ASC NULLS LAST`, runID)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TaskRun, error) {
		t, err := pgx.RowToStructByName[taskRow](row)
		if err != nil {
			return domain.TaskRun{}, fmt.Errorf("scan task run: %w", err)
		}
		tr := domain.TaskRun{
			ID:         t.ID,
			RunID:      t.RunID,
			TaskName:   t.Task,
			Type:       domain.TaskType(t.Type),
			Status:     domain.TaskStatus(t.Status),
			StartedAt:  t.StartedAt,
			FinishedAt: t.FinishedAt,
			Error:      deref(t.Error),
		}
		return tr, decodeJSON("fields", t.Fields, &tr.Fields)
	})
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/piper/internal/domain"
)

const defaultListLimit = 50

// RunFilter — условия выборки истории. Пустые поля не фильтруют.
type RunFilter struct {
	Pipeline string
	Status   domain.RunStatus
	Limit    int
	Offset   int
}

// RunRepo хранит run в таблице runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// runRow — строка runs в порядке колонок selectRuns.
type runRow struct {
	ID         uuid.UUID  `db:"id"`
	Pipeline   string     `db:"pipeline"`
	Status     string     `db:"status"`
	Params     []byte     `db:"params"`
	Trigger    *string    `db:"trigger"`
	StartedAt  *time.Time `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Error      *string    `db:"error"`
	CreatedAt  time.Time  `db:"created_at"`
}

func (r runRow) toDomain() (domain.Run, error) {
	run := domain.Run{
		ID:           r.ID,
		PipelineName: r.Pipeline,
		Status:       domain.RunStatus(r.Status),
		Trigger:      deref(r.Trigger),
		Error:        deref(r.Error),
		CreatedAt:    r.CreatedAt,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
	err := decodeJSON("params", r.Params, &run.Params)
	return run, err
}

const selectRuns = `SELECT id, pipeline, status, params, trigger, started_at, finished_at, error, created_at FROM runs`

// Create сохраняет новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO runs (id, pipeline, status, params, trigger, started_at, finished_at, error, created_at)
		VALUES (@id, @pipeline, @status, @params, @trigger, @started_at, @finished_at, @error, @created_at)`,
		pgx.NamedArgs{
			"id":          run.ID,
			"pipeline":    run.PipelineName,
			"status":      string(run.Status),
			"params":      params,
			"trigger":     nullString(run.Trigger),
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
			"error":       nullString(run.Error),
			"created_at":  run.CreatedAt,
		})
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Update записывает статус, время и ошибку run.
func (r *RunRepo) Update(ctx context.Context, run *domain.Run) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET status = @status, started_at = @started_at, finished_at = @finished_at, error = @error
		WHERE id = @id`,
		pgx.NamedArgs{
			"id":          run.ID,
			"status":      string(run.Status),
			"started_at":  run.StartedAt,
			"finished_at": run.FinishedAt,
			"error":       nullString(run.Error),
		})
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает run или ErrNotFound.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	rows, err := r.pool.Query(ctx, selectRuns+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[runRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	run, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List возвращает run, новые первыми. Limit по умолчанию 50.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.pool.Query(ctx, selectRuns+`
		WHERE (@pipeline::text IS NULL OR pipeline = @pipeline)
		  AND (@status::text IS NULL OR status = @status)
		ORDER BY created_at DESC
		LIMIT @limit OFFSET @offset`,
		pgx.NamedArgs{
			"pipeline": nullString(filter.Pipeline),
			"status":   nullString(string(filter.Status)),
			"limit":    limit,
			"offset":   filter.Offset,
		})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[runRow])
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]domain.Run, 0, len(collected))
	for _, row := range collected {
		run, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

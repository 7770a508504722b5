package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskRun — запись о выполнении одной задачи внутри run.
//
// Одна и та же задача может выполниться в run несколько раз,
// если flow ссылается на неё повторно.
type TaskRun struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// TaskName — имя задачи в pipeline.
	TaskName string `json:"task"`

	// Type — тип задачи.
	Type TaskType `json:"type"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Fields — поля результата, записанные задачей.
	Fields map[string]any `json:"fields,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`
}

// NewTaskRun создаёт запись в статусе QUEUED.
func NewTaskRun(runID uuid.UUID, name string, typ TaskType) *TaskRun {
	return &TaskRun{
		ID:       uuid.New(),
		RunID:    runID,
		TaskName: name,
		Type:     typ,
		Status:   TaskStatusQueued,
	}
}

// Duration возвращает продолжительность выполнения.
func (t *TaskRun) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// MarkRunning переводит задачу в статус RUNNING.
func (t *TaskRun) MarkRunning() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
}

// MarkSucceeded переводит задачу в статус SUCCEEDED с результатами.
func (t *TaskRun) MarkSucceeded(fields map[string]any) {
	now := time.Now()
	t.Status = TaskStatusSucceeded
	t.FinishedAt = &now
	t.Fields = fields
}

// MarkFailed переводит задачу в статус FAILED с ошибкой.
// Поля, записанные до ошибки, сохраняются.
func (t *TaskRun) MarkFailed(fields map[string]any, err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.FinishedAt = &now
	t.Fields = fields
	t.Error = err
}

// MarkSkipped переводит задачу в статус SKIPPED.
func (t *TaskRun) MarkSkipped(reason string) {
	t.Status = TaskStatusSkipped
	t.Error = reason
}

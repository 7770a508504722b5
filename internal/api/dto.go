package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/piper/internal/domain"
)

// RunSummary — запись истории run.
type RunSummary struct {
	ID         uuid.UUID      `json:"id"`
	Pipeline   string         `json:"pipeline"`
	Status     string         `json:"status"`
	Trigger    string         `json:"trigger,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunSummary.
func RunFromDomain(r domain.Run) RunSummary {
	return RunSummary{
		ID:         r.ID,
		Pipeline:   r.PipelineName,
		Status:     string(r.Status),
		Trigger:    r.Trigger,
		Params:     r.Params,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// TaskRunSummary — запись истории выполнения задачи.
type TaskRunSummary struct {
	ID         uuid.UUID      `json:"id"`
	RunID      uuid.UUID      `json:"run_id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Fields     map[string]any `json:"fields,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// TaskRunFromDomain конвертирует domain.TaskRun в TaskRunSummary.
func TaskRunFromDomain(t domain.TaskRun) TaskRunSummary {
	return TaskRunSummary{
		ID:         t.ID,
		RunID:      t.RunID,
		Name:       t.TaskName,
		Type:       string(t.Type),
		Status:     string(t.Status),
		Fields:     t.Fields,
		Error:      t.Error,
		StartedAt:  t.StartedAt,
		FinishedAt: t.FinishedAt,
	}
}

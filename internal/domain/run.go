package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — один запуск pipeline: из CLI, по HTTP, из очереди или
// по расписанию (Trigger).
type Run struct {
	ID           uuid.UUID      `json:"id"`
	PipelineName string         `json:"pipeline"`
	Status       RunStatus      `json:"status"`
	Params       map[string]any `json:"params,omitempty"`

	// Trigger — источник запуска: "cli", "http", "mq", "schedule".
	Trigger string `json:"trigger,omitempty"`

	// Error заполняется для FAILED.
	Error string `json:"error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(pipeline string, params map[string]any, trigger string) *Run {
	return &Run{
		ID:           uuid.New(),
		PipelineName: pipeline,
		Status:       RunStatusPending,
		Params:       params,
		Trigger:      trigger,
		CreatedAt:    time.Now(),
	}
}

// Duration — время от RUNNING до завершения; 0, пока run не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

func (r *Run) MarkSucceeded() {
	r.finish(RunStatusSucceeded, "")
}

func (r *Run) MarkFailed(err string) {
	r.finish(RunStatusFailed, err)
}

func (r *Run) MarkCancelled() {
	r.finish(RunStatusCancelled, "")
}

// finish фиксирует итоговый статус. Run, который не успел стать
// RUNNING, получает StartedAt == FinishedAt.
func (r *Run) finish(status RunStatus, errText string) {
	now := time.Now()
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
	r.Status = status
	r.Error = errText
	r.FinishedAt = &now
}

package domain

import (
	"fmt"
	"strings"
)

// RunStatus — состояние запуска pipeline.
//
//	PENDING → RUNNING → SUCCEEDED | FAILED | CANCELLED
//
// CANCELLED означает, что ctx запуска отменён до завершения flow.
type RunStatus string

// Состояния run.
const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

var runStatuses = []RunStatus{
	RunStatusPending,
	RunStatusRunning,
	RunStatusSucceeded,
	RunStatusFailed,
	RunStatusCancelled,
}

// ParseRunStatus разбирает статус без учёта регистра.
func ParseRunStatus(s string) (RunStatus, error) {
	want := RunStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range runStatuses {
		if st == want {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown run status %q", s)
}

// IsTerminal — run завершён и больше не изменится.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// TaskStatus — состояние одной задачи внутри run.
//
// Задача получает QUEUED, когда flow до неё доходит, RUNNING на время
// Execute, и SKIPPED, если run отменён раньше, чем она запустилась.
type TaskStatus string

// Состояния задачи.
const (
	TaskStatusQueued    TaskStatus = "QUEUED"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusSkipped   TaskStatus = "SKIPPED"
)

// IsTerminal — задача завершена.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusSkipped
}

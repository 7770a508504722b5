package orchestrator

import (
	"context"

	"github.com/shaiso/piper/internal/domain"
)

// Recorder получает события выполнения run.
//
// Используется для сохранения истории (repo.Recorder) и вывода
// прогресса в CLI. Ошибки Recorder логируются и не прерывают run.
// Методы TaskStarted и TaskFinished вызываются конкурентно из веток Parallel.
type Recorder interface {
	RunStarted(ctx context.Context, run *domain.Run) error
	TaskStarted(ctx context.Context, task *domain.TaskRun) error
	TaskFinished(ctx context.Context, task *domain.TaskRun) error
	RunFinished(ctx context.Context, run *domain.Run) error
}

// Recorders объединяет несколько Recorder в один.
type Recorders []Recorder

// RunStarted реализует Recorder.
func (rs Recorders) RunStarted(ctx context.Context, run *domain.Run) error {
	return rs.each(func(r Recorder) error { return r.RunStarted(ctx, run) })
}

// TaskStarted реализует Recorder.
func (rs Recorders) TaskStarted(ctx context.Context, task *domain.TaskRun) error {
	return rs.each(func(r Recorder) error { return r.TaskStarted(ctx, task) })
}

// TaskFinished реализует Recorder.
func (rs Recorders) TaskFinished(ctx context.Context, task *domain.TaskRun) error {
	return rs.each(func(r Recorder) error { return r.TaskFinished(ctx, task) })
}

// RunFinished реализует Recorder.
func (rs Recorders) RunFinished(ctx context.Context, run *domain.Run) error {
	return rs.each(func(r Recorder) error { return r.RunFinished(ctx, run) })
}

// each вызывает fn для всех Recorder и возвращает первую ошибку.
func (rs Recorders) each(fn func(Recorder) error) error {
	var first error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := fn(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки интерпретатора.
var (
	// ErrTaskNotFound — flow ссылается на задачу, которой нет в pipeline.
	ErrTaskNotFound = errors.New("task not found")

	// ErrCancelled — run прерван отменой контекста между элементами flow.
	ErrCancelled = errors.New("run cancelled")

	// ErrMetaPipeline — мета-пайплайн нельзя выполнить до материализации.
	ErrMetaPipeline = errors.New("meta-pipeline must be materialized before run")

	// ErrParallel — один или несколько элементов Parallel завершились с ошибкой.
	ErrParallel = errors.New("parallel flow failed")
)

// ItemError — ошибка одного элемента Parallel.
type ItemError struct {
	Index int    // позиция элемента в Parallel
	Item  string // имя задачи или описание вложенного flow
	Err   error
}

// ParallelError — агрегированная ошибка Parallel.
// Содержит ошибки всех упавших элементов в порядке объявления.
type ParallelError struct {
	Total  int
	Errors []ItemError
}

// Error реализует интерфейс error.
func (e *ParallelError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, item := range e.Errors {
		parts[i] = fmt.Sprintf("%s: %v", item.Item, item.Err)
	}
	return fmt.Sprintf("%v: %d of %d items failed: %s", ErrParallel, len(e.Errors), e.Total, strings.Join(parts, "; "))
}

// Unwrap возвращает ErrParallel и ошибки элементов.
func (e *ParallelError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors)+1)
	errs = append(errs, ErrParallel)
	for _, item := range e.Errors {
		errs = append(errs, item.Err)
	}
	return errs
}

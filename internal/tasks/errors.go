package tasks

import (
	"errors"
	"fmt"
)

// Ошибки задач.
var (
	// ErrExecution — задача завершилась с ошибкой.
	ErrExecution = errors.New("execution error")

	// ErrValidation — аргументы задачи невалидны, выполнение не начиналось.
	ErrValidation = errors.New("validation error")

	// ErrContext — не удалось прочитать или записать контекст run.
	ErrContext = errors.New("context error")

	// ErrDuplicateTaskName — тип задачи уже зарегистрирован.
	ErrDuplicateTaskName = errors.New("duplicate task name")

	// ErrBackendNotFound — для типа задачи нет реализации.
	ErrBackendNotFound = errors.New("task backend not found")
)

// TaskError — ошибка задачи с указанием вида и имени задачи.
type TaskError struct {
	Kind    error  // один из ErrExecution, ErrValidation, ErrContext, ErrDuplicateTaskName
	Task    string // имя задачи или тип
	Message string // описание ошибки
	Err     error  // базовая ошибка (опционально)
}

// Error реализует интерфейс error.
func (e *TaskError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Task != "" {
		return fmt.Sprintf("%v: task %s: %s", e.Kind, e.Task, msg)
	}
	return fmt.Sprintf("%v: %s", e.Kind, msg)
}

// Unwrap возвращает вид ошибки и базовую ошибку.
func (e *TaskError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewExecutionError создаёт ошибку выполнения.
func NewExecutionError(task, message string, err error) *TaskError {
	return &TaskError{Kind: ErrExecution, Task: task, Message: message, Err: err}
}

// NewValidationError создаёт ошибку валидации.
func NewValidationError(task, message string) *TaskError {
	return &TaskError{Kind: ErrValidation, Task: task, Message: message}
}

// NewContextError создаёт ошибку работы с контекстом.
func NewContextError(task, message string, err error) *TaskError {
	return &TaskError{Kind: ErrContext, Task: task, Message: message, Err: err}
}

// NewDuplicateTaskName создаёт ошибку повторной регистрации.
func NewDuplicateTaskName(name string) *TaskError {
	return &TaskError{Kind: ErrDuplicateTaskName, Task: name, Message: "already registered"}
}

// missingArg — ошибка валидации для отсутствующего аргумента.
func missingArg(task, name string) *TaskError {
	return NewValidationError(task, fmt.Sprintf("missing '%s' argument", name))
}

package dsl

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки компиляции pipeline.
var (
	// ErrSyntax — текст не соответствует грамматике.
	ErrSyntax = errors.New("syntax error")

	// ErrInvalidTaskType — неизвестный тип задачи.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrMissingField — в дереве разбора нет обязательного элемента.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidValue — значение не удалось преобразовать.
	ErrInvalidValue = errors.New("invalid value")
)

// Ошибки статической проверки (Check).
var (
	// ErrUnknownTask — flow ссылается на необъявленную задачу.
	ErrUnknownTask = errors.New("flow references unknown task")

	// ErrUnreachableTask — задача объявлена, но flow на неё не ссылается.
	ErrUnreachableTask = errors.New("task is not referenced by flow")

	// ErrUnmaterialized — задача генерации в pipeline без кэша.
	ErrUnmaterialized = errors.New("meta task must be materialized before run")
)

// Position — позиция в исходном тексте (строки и колонки с 1).
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

// String возвращает "line:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ParseError — синтаксическая ошибка с позицией и ожидаемым правилом.
type ParseError struct {
	Pos      Position // где произошла ошибка
	Rule     Rule     // правило, которое разбиралось
	Expected []string // что ожидалось
	Found    string   // что встретилось
}

// Error реализует интерфейс error.
func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "syntax error at %s", e.Pos)
	if e.Rule != "" {
		fmt.Fprintf(&b, " in %s", e.Rule)
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, ": expected %s", strings.Join(e.Expected, " or "))
	}
	if e.Found != "" {
		fmt.Fprintf(&b, ", found %s", e.Found)
	}
	return b.String()
}

// Unwrap возвращает ErrSyntax.
func (e *ParseError) Unwrap() error {
	return ErrSyntax
}

// BuildError — ошибка построения AST из дерева разбора.
type BuildError struct {
	Kind    error  // ErrInvalidTaskType, ErrMissingField или ErrInvalidValue
	Field   string // поле или операция, вызвавшие ошибку
	Message string // описание ошибки
}

// Error реализует интерфейс error.
func (e *BuildError) Error() string {
	switch e.Kind {
	case ErrInvalidTaskType:
		return "invalid task type: " + e.Message
	case ErrMissingField:
		return "missing required field: " + e.Field
	default:
		return fmt.Sprintf("invalid value for field %s: %s", e.Field, e.Message)
	}
}

// Unwrap возвращает вид ошибки.
func (e *BuildError) Unwrap() error {
	return e.Kind
}

// NewInvalidTaskType создаёт ошибку неизвестного типа задачи.
func NewInvalidTaskType(taskType string) *BuildError {
	return &BuildError{Kind: ErrInvalidTaskType, Field: "task_type", Message: taskType}
}

// NewMissingField создаёт ошибку отсутствующего поля.
func NewMissingField(field string) *BuildError {
	return &BuildError{Kind: ErrMissingField, Field: field}
}

// NewInvalidValue создаёт ошибку невалидного значения.
func NewInvalidValue(field, message string) *BuildError {
	return &BuildError{Kind: ErrInvalidValue, Field: field, Message: message}
}

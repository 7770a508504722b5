package engine

import (
	"errors"
	"fmt"
)

// Ошибки вычисления значений.
var (
	// ErrEvaluation — значение или условие не удалось вычислить.
	ErrEvaluation = errors.New("evaluation error")

	// ErrUnknownFunction — функция не зарегистрирована.
	ErrUnknownFunction = errors.New("unknown function")
)

// EvaluationError — ошибка вычисления с указанием выражения.
type EvaluationError struct {
	Expr    string // выражение или его часть
	Message string // описание ошибки
	Err     error  // базовая ошибка (опционально)
}

// Error реализует интерфейс error.
func (e *EvaluationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Expr != "" {
		return fmt.Sprintf("evaluation error in %s: %s", e.Expr, msg)
	}
	return "evaluation error: " + msg
}

// Unwrap возвращает базовую ошибку.
func (e *EvaluationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrEvaluation
}

// Is позволяет проверять errors.Is(err, ErrEvaluation) при любой базовой ошибке.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

// NewEvaluationError создаёт новую ошибку вычисления.
func NewEvaluationError(expr, message string, err error) *EvaluationError {
	return &EvaluationError{Expr: expr, Message: message, Err: err}
}

package dsl

import (
	"fmt"

	"github.com/shaiso/piper/internal/domain"
)

// CheckError — замечание статической проверки с указанием задачи.
type CheckError struct {
	Task    string // имя задачи
	Message string // описание
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *CheckError) Error() string {
	if e.Task != "" {
		return "task " + e.Task + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *CheckError) Unwrap() error {
	return e.Err
}

// Check выполняет статическую проверку pipeline.
//
// Проверяет:
// - Ссылки flow на необъявленные задачи
// - Задачи, на которые flow не ссылается
// - Задачи генерации, требующие материализации
//
// Интерпретатор не зависит от Check: отсутствующая задача всё равно
// обнаруживается при выполнении. Check нужен для раннего отчёта.
func Check(p *domain.Pipeline) []error {
	var errs []error

	if p.Flow != nil {
		referenced := make(map[string]bool)
		for _, name := range domain.TaskRefs(p.Flow) {
			if referenced[name] {
				continue
			}
			referenced[name] = true
			if _, ok := p.Tasks[name]; !ok {
				errs = append(errs, &CheckError{
					Task:    name,
					Message: fmt.Sprintf("flow references unknown task %q", name),
					Err:     ErrUnknownTask,
				})
			}
		}

		for _, name := range p.TaskOrder {
			if !referenced[name] {
				errs = append(errs, &CheckError{
					Task:    name,
					Message: "task is declared but never referenced by flow",
					Err:     ErrUnreachableTask,
				})
			}
		}
	}

	for _, name := range p.TaskOrder {
		if p.Tasks[name].Type.IsMeta() {
			errs = append(errs, &CheckError{
				Task:    name,
				Message: fmt.Sprintf("%s task is resolved through the generation cache", p.Tasks[name].Type),
				Err:     ErrUnmaterialized,
			})
		}
	}

	return errs
}

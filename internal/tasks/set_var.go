package tasks

import (
	"context"
	"strings"

	"github.com/shaiso/piper/internal/engine"
)

// SetVarTask — запись переменной в контекст run.
//
//	set_var(var = "env", val = "prod")
//
// Значение сохраняет свой тип. Основной результат — записанное значение.
type SetVarTask struct {
	base
}

// NewSetVarTask создаёт задачу set_var.
func NewSetVarTask(spec Spec) Task {
	return &SetVarTask{base: newBase(spec)}
}

// Validate проверяет наличие имени и значения.
func (t *SetVarTask) Validate() error {
	if strings.TrimSpace(toString(t.spec.arg("var", 0))) == "" {
		return missingArg(t.spec.Name, "var")
	}
	if _, ok := t.spec.Args["val"]; !ok && len(t.spec.Positional) < 2 {
		return missingArg(t.spec.Name, "val")
	}
	return nil
}

// Execute записывает переменную.
func (t *SetVarTask) Execute(_ context.Context, vars *engine.Context, sink *ResultSink) error {
	name := toString(t.spec.arg("var", 0))
	value := t.spec.arg("val", 1)

	vars.Set(name, value)

	sink.SetMany(map[string]any{"var": name, "val": value})
	sink.SetOutput(value)
	t.record(sink, StatusSuccess)
	return nil
}

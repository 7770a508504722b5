package tasks

import (
	"context"
	"reflect"
	"strings"

	"github.com/dop251/goja"

	"github.com/shaiso/piper/internal/engine"
)

// ScriptTask — выполнение JavaScript.
//
//	script(script = "ctx.total = ctx.items.length; ctx.total * 2")
//
// Переменные run доступны в объекте ctx. Изменённые и новые ключи ctx
// записываются обратно в контекст. Значение последнего выражения —
// основной результат.
type ScriptTask struct {
	base
}

// NewScriptTask создаёт задачу script.
func NewScriptTask(spec Spec) Task {
	return &ScriptTask{base: newBase(spec)}
}

func (t *ScriptTask) source() string {
	if v := t.spec.arg("script", 0); v != nil {
		return toString(v)
	}
	return GetConfigString(t.spec.Args, "code")
}

// Validate проверяет наличие скрипта.
func (t *ScriptTask) Validate() error {
	if strings.TrimSpace(t.source()) == "" {
		return missingArg(t.spec.Name, "script")
	}
	return nil
}

// Execute выполняет скрипт в новом goja.Runtime.
func (t *ScriptTask) Execute(ctx context.Context, vars *engine.Context, sink *ResultSink) error {
	src := t.source()
	sink.Set("script", src)

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	before := vars.Snapshot()
	jsCtx := make(map[string]any, len(before))
	for k, v := range before {
		jsCtx[k] = normalize(v)
	}
	if err := vm.Set("ctx", jsCtx); err != nil {
		return NewContextError(t.spec.Name, "expose ctx", err)
	}

	// Прерываем скрипт при отмене контекста
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	result, err := vm.RunString(src)
	if err != nil {
		t.record(sink, StatusError)
		sink.Set("error", err.Error())
		return NewExecutionError(t.spec.Name, "script failed", err)
	}

	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		sink.SetOutput(fromJS(result.Export()))
	}

	exported, ok := vm.Get("ctx").Export().(map[string]any)
	if !ok {
		t.record(sink, StatusError)
		return NewContextError(t.spec.Name, "global ctx is no longer an object", nil)
	}

	updated := make(map[string]any)
	for k, v := range exported {
		value := fromJS(v)
		if old, exists := before[k]; exists && reflect.DeepEqual(normalize(old), value) {
			continue
		}
		updated[k] = value
	}
	vars.SetMany(updated)

	sink.Set("updated", sortedKeys(updated))
	t.record(sink, StatusSuccess)
	return nil
}

// fromJS приводит экспортированное значение goja к значениям контекста.
func fromJS(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromJS(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromJS(item)
		}
		return out
	default:
		return normalize(v)
	}
}

package tasks

import (
	"context"
	"reflect"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/shaiso/piper/internal/engine"
)

// LuaTask — выполнение Lua скрипта.
//
//	lua(script = "ctx.count = (ctx.count or 0) + 1; return ctx.count")
//
// Переменные run доступны в глобальной таблице ctx. Изменённые и новые
// ключи ctx после выполнения записываются обратно в контекст.
// Значение из return — основной результат.
type LuaTask struct {
	base
}

// NewLuaTask создаёт задачу lua.
func NewLuaTask(spec Spec) Task {
	return &LuaTask{base: newBase(spec)}
}

func (t *LuaTask) script() string {
	if v := t.spec.arg("script", 0); v != nil {
		return toString(v)
	}
	return GetConfigString(t.spec.Args, "code")
}

// Validate проверяет наличие скрипта.
func (t *LuaTask) Validate() error {
	if strings.TrimSpace(t.script()) == "" {
		return missingArg(t.spec.Name, "script")
	}
	return nil
}

// Execute выполняет скрипт в отдельном состоянии Lua.
func (t *LuaTask) Execute(ctx context.Context, vars *engine.Context, sink *ResultSink) error {
	script := t.script()
	sink.Set("script", script)

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	before := vars.Snapshot()
	table := L.NewTable()
	for k, v := range before {
		table.RawSetString(k, toLua(L, v))
	}
	L.SetGlobal("ctx", table)

	top := L.GetTop()
	if err := L.DoString(script); err != nil {
		t.record(sink, StatusError)
		sink.Set("error", err.Error())
		return NewExecutionError(t.spec.Name, "lua script failed", err)
	}

	if L.GetTop() > top {
		sink.SetOutput(fromLua(L.Get(-1)))
	}

	// ctx могли переприсвоить целиком
	current, ok := L.GetGlobal("ctx").(*lua.LTable)
	if !ok {
		t.record(sink, StatusError)
		return NewContextError(t.spec.Name, "global ctx is no longer a table", nil)
	}

	updated := make(map[string]any)
	current.ForEach(func(k, v lua.LValue) {
		key, isString := k.(lua.LString)
		if !isString {
			return
		}
		value := fromLua(v)
		if old, exists := before[string(key)]; exists && reflect.DeepEqual(normalize(old), value) {
			return
		}
		updated[string(key)] = value
	})
	vars.SetMany(updated)

	sink.Set("updated", sortedKeys(updated))
	t.record(sink, StatusSuccess)
	return nil
}

// toLua преобразует значение контекста в значение Lua.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := normalize(v).(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case bool:
		return lua.LBool(val)
	case []any:
		table := L.NewTable()
		for _, item := range val {
			table.Append(toLua(L, item))
		}
		return table
	case map[string]any:
		table := L.NewTable()
		for k, item := range val {
			table.RawSetString(k, toLua(L, item))
		}
		return table
	default:
		return lua.LString(engine.Stringify(val))
	}
}

// fromLua преобразует значение Lua в значение контекста.
// Таблица с последовательными целыми ключами становится списком.
func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 {
			list := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, fromLua(val.RawGetInt(i)))
			}
			return list
		}
		obj := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			obj[k.String()] = fromLua(item)
		})
		return obj
	default:
		return nil
	}
}

// normalize приводит числа к float64, а map[string]string и []string —
// к общим типам, чтобы значения из разных источников были сравнимы.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

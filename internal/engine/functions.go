package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Function — функция, доступная в выражениях: #{upper(name)}.
// Получает уже вычисленные аргументы в порядке записи.
type Function func(args []any) (any, error)

// Functions — реестр функций выражений.
// Потокобезопасен.
type Functions struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

// NewFunctions создаёт пустой реестр.
func NewFunctions() *Functions {
	return &Functions{funcs: make(map[string]Function)}
}

// DefaultFunctions создаёт реестр со стандартными функциями.
func DefaultFunctions() *Functions {
	f := NewFunctions()
	for name, fn := range builtinFunctions {
		f.Register(name, fn)
	}
	return f
}

// Register регистрирует функцию. Существующая функция перезаписывается.
func (f *Functions) Register(name string, fn Function) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[name] = fn
}

// Has проверяет, зарегистрирована ли функция.
func (f *Functions) Has(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.funcs[name]
	return ok
}

// Names возвращает отсортированный список функций.
func (f *Functions) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.funcs))
	for name := range f.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call вызывает функцию по имени.
func (f *Functions) Call(name string, args []any) (any, error) {
	f.mu.RLock()
	fn, ok := f.funcs[name]
	f.mu.RUnlock()

	if !ok {
		return nil, NewEvaluationError(name+"()", "malformed function call", fmt.Errorf("%w: %s", ErrUnknownFunction, name))
	}

	result, err := fn(args)
	if err != nil {
		return nil, NewEvaluationError(name+"()", "function failed", err)
	}
	return result, nil
}

// builtinFunctions — стандартные функции выражений.
var builtinFunctions = map[string]Function{
	// json — сериализует значение в JSON строку
	"json": toJSON,

	// toJSON — алиас для json
	"toJSON": toJSON,

	// fromJSON — парсит JSON строку
	"fromJSON": func(args []any) (any, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		var result any
		if err := json.Unmarshal([]byte(Stringify(args[0])), &result); err != nil {
			return nil, nil
		}
		return result, nil
	},

	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(args []any) (any, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		if IsEmpty(args[1]) {
			return args[0], nil
		}
		return args[1], nil
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(args []any) (any, error) {
		for _, v := range args {
			if !IsEmpty(v) {
				return v, nil
			}
		}
		return nil, nil
	},

	// join — объединяет элементы через разделитель
	"join": func(args []any) (any, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		return strings.Join(stringList(args[1]), Stringify(args[0])), nil
	},

	// split — разбивает строку на список
	"split": func(args []any) (any, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		parts := strings.Split(Stringify(args[1]), Stringify(args[0]))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	},

	// contains — подстрока в строке или элемент в списке
	"contains": func(args []any) (any, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		if list, ok := args[0].([]any); ok {
			for _, item := range list {
				if Stringify(item) == Stringify(args[1]) {
					return true, nil
				}
			}
			return false, nil
		}
		return strings.Contains(Stringify(args[0]), Stringify(args[1])), nil
	},

	// hasPrefix — проверяет префикс строки
	"hasPrefix": stringPredicate(strings.HasPrefix),

	// hasSuffix — проверяет суффикс строки
	"hasSuffix": stringPredicate(strings.HasSuffix),

	// lower — приводит к нижнему регистру
	"lower": stringUnary(strings.ToLower),

	// upper — приводит к верхнему регистру
	"upper": stringUnary(strings.ToUpper),

	// trim — удаляет пробелы по краям
	"trim": stringUnary(strings.TrimSpace),

	// replace — заменяет подстроку: replace(s, old, new)
	"replace": func(args []any) (any, error) {
		if err := arity(args, 3); err != nil {
			return nil, err
		}
		return strings.ReplaceAll(Stringify(args[0]), Stringify(args[1]), Stringify(args[2])), nil
	},

	// concat — склеивает строковые представления аргументов
	"concat": func(args []any) (any, error) {
		var b strings.Builder
		for _, a := range args {
			b.WriteString(Stringify(a))
		}
		return b.String(), nil
	},

	// len — длина строки, списка или объекта
	"len": func(args []any) (any, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		switch v := args[0].(type) {
		case nil:
			return float64(0), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		default:
			return float64(len(Stringify(v))), nil
		}
	},

	// env — переменная окружения процесса
	"env": func(args []any) (any, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		return os.Getenv(Stringify(args[0])), nil
	},

	// now — текущее время в RFC 3339
	"now": func(args []any) (any, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	},
}

func toJSON(args []any) (any, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func stringUnary(fn func(string) string) Function {
	return func(args []any) (any, error) {
		if err := arity(args, 1); err != nil {
			return nil, err
		}
		return fn(Stringify(args[0])), nil
	}
}

func stringPredicate(fn func(s, sub string) bool) Function {
	return func(args []any) (any, error) {
		if err := arity(args, 2); err != nil {
			return nil, err
		}
		return fn(Stringify(args[0]), Stringify(args[1])), nil
	}
}

func arity(args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	return nil
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			out[i] = Stringify(item)
		}
		return out
	case nil:
		return nil
	default:
		return []string{Stringify(v)}
	}
}

package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/dsl"
)

// Evaluator вычисляет значения и условия DSL относительно Context.
//
// Правила:
//   - неустановленная переменная даёт nil и не является ошибкой
//   - fallback, &&, || и тернарное выражение вычисляются лениво
//   - строки интерполируются: "x=#{x}"
type Evaluator struct {
	funcs *Functions
	exprs *exprCache
}

// NewEvaluator создаёт Evaluator. При funcs == nil используются DefaultFunctions.
func NewEvaluator(funcs *Functions) *Evaluator {
	if funcs == nil {
		funcs = DefaultFunctions()
	}
	return &Evaluator{funcs: funcs, exprs: newExprCache(defaultExprCacheSize)}
}

// Functions возвращает реестр функций.
func (e *Evaluator) Functions() *Functions {
	return e.funcs
}

// Resolve вычисляет значение.
//
// Результат — одно из: nil, string, float64, bool, map[string]any, []any.
func (e *Evaluator) Resolve(v domain.Value, vars *Context) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil

	case domain.String:
		return e.Interpolate(string(val), vars)

	case domain.MultilineString:
		return e.Interpolate(string(val), vars)

	case domain.Number:
		return float64(val), nil

	case domain.Boolean:
		return bool(val), nil

	case domain.Object:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := e.Resolve(item, vars)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case domain.Array:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := e.Resolve(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	case domain.VarInterpolation:
		value, _ := vars.Get(string(val))
		return value, nil

	case domain.PropertyAccess:
		value, _ := vars.Lookup(val.Base, val.Path)
		return value, nil

	case domain.FallbackExpr:
		primary, err := e.Resolve(val.Primary, vars)
		if err != nil {
			return nil, err
		}
		if !IsEmpty(primary) {
			return primary, nil
		}
		return e.Resolve(val.Fallback, vars)

	case domain.FunctionCall:
		args := make([]any, len(val.Arguments))
		for i, arg := range val.Arguments {
			resolved, err := e.Resolve(arg.Value, vars)
			if err != nil {
				return nil, err
			}
			args[i] = resolved
		}
		return e.funcs.Call(val.Name, args)

	case domain.ConditionalValue:
		ok, err := e.Condition(val.Condition, vars)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.Resolve(val.Then, vars)
		}
		return e.Resolve(val.Else, vars)

	default:
		return nil, NewEvaluationError(fmt.Sprintf("%T", v), "unsupported value", nil)
	}
}

// ResolveArgs вычисляет именованные аргументы задачи.
func (e *Evaluator) ResolveArgs(args map[string]domain.Value, vars *Context) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for name, v := range args {
		resolved, err := e.Resolve(v, vars)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		out[name] = resolved
	}
	return out, nil
}

// Condition вычисляет условие.
func (e *Evaluator) Condition(c domain.Condition, vars *Context) (bool, error) {
	switch cond := c.(type) {
	case domain.BoolCondition:
		return bool(cond), nil

	case domain.VarCondition:
		value, _ := vars.Get(string(cond))
		return Truthy(value), nil

	case domain.Comparison:
		left, err := e.Resolve(cond.Left, vars)
		if err != nil {
			return false, err
		}
		right, err := e.Resolve(cond.Right, vars)
		if err != nil {
			return false, err
		}
		return Compare(left, cond.Operator, right)

	case domain.LogicalOperation:
		left, err := e.Condition(cond.Left, vars)
		if err != nil {
			return false, err
		}
		switch cond.Operator {
		case domain.OpAnd:
			if !left {
				return false, nil
			}
		case domain.OpOr:
			if left {
				return true, nil
			}
		default:
			return false, NewEvaluationError(string(cond.Operator), "unknown logical operator", nil)
		}
		return e.Condition(cond.Right, vars)

	default:
		return false, NewEvaluationError(fmt.Sprintf("%T", c), "unsupported condition", nil)
	}
}

// Interpolate подставляет значения выражений #{...} в строку.
//
// Строка, целиком состоящая из одного выражения, возвращает значение
// его собственного типа. Фрагменты, которые не разбираются как
// выражение, остаются в строке без изменений.
func (e *Evaluator) Interpolate(s string, vars *Context) (any, error) {
	if !strings.Contains(s, "#{") {
		return s, nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "#{")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := matchBrace(rest, start+2)
		if end < 0 {
			b.WriteString(rest)
			break
		}

		inner := rest[start+2 : end]
		expr, ok := e.expression(inner)
		if !ok {
			b.WriteString(rest[:end+1])
			rest = rest[end+1:]
			continue
		}

		value, err := e.Resolve(expr, vars)
		if err != nil {
			return nil, err
		}

		// Вся строка — одно выражение: сохраняем тип значения.
		if start == 0 && end == len(rest)-1 && b.Len() == 0 {
			return value, nil
		}

		b.WriteString(rest[:start])
		b.WriteString(Stringify(value))
		rest = rest[end+1:]
	}
	return b.String(), nil
}

// expression разбирает содержимое #{...}. Последние разобранные
// фрагменты хранятся в ограниченном LRU.
func (e *Evaluator) expression(src string) (domain.Value, bool) {
	if cached, ok := e.exprs.get(src); ok {
		return cached.value, cached.ok
	}
	v, err := dsl.ParseExpression(src)
	entry := exprEntry{src: src, value: v, ok: err == nil}
	if err != nil {
		entry.value = nil
	}
	e.exprs.add(entry)
	return entry.value, entry.ok
}

// matchBrace находит закрывающую } для #{, учитывая вложенные скобки
// и строковые литералы. Возвращает -1, если скобка не закрыта.
func matchBrace(s string, from int) int {
	depth := 1
	inString := false
	for i := from; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Compare сравнивает два вычисленных значения.
//
// Если хотя бы одна сторона — число, обе приводятся к float64
// (числовые строки тоже). Несравнимые по типу значения не равны;
// упорядочивание несравнимых значений — ошибка.
func Compare(left any, op domain.ComparisonOperator, right any) (bool, error) {
	if isNumber(left) || isNumber(right) {
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if lok && rok {
			return compareOrdered(ln, op, rn)
		}
		return compareMismatched(left, op, right)
	}

	// Неустановленная переменная сравнивается со строкой как "".
	if left == nil {
		if _, ok := right.(string); ok {
			left = ""
		}
	}
	if right == nil {
		if _, ok := left.(string); ok {
			right = ""
		}
	}

	switch l := left.(type) {
	case string:
		if r, ok := right.(string); ok {
			return compareOrdered(l, op, r)
		}
	case bool:
		if r, ok := right.(bool); ok {
			return compareEquality(l == r, op, left, right)
		}
	case nil:
		if right == nil {
			return compareEquality(true, op, left, right)
		}
	default:
		if reflect.TypeOf(left) == reflect.TypeOf(right) {
			return compareEquality(reflect.DeepEqual(left, right), op, left, right)
		}
	}

	return compareMismatched(left, op, right)
}

type ordered interface {
	~float64 | ~string
}

func compareOrdered[T ordered](l T, op domain.ComparisonOperator, r T) (bool, error) {
	switch op {
	case domain.OpEqual:
		return l == r, nil
	case domain.OpNotEqual:
		return l != r, nil
	case domain.OpGreater:
		return l > r, nil
	case domain.OpLess:
		return l < r, nil
	case domain.OpGreaterEqual:
		return l >= r, nil
	case domain.OpLessEqual:
		return l <= r, nil
	default:
		return false, NewEvaluationError(string(op), "unknown comparison operator", nil)
	}
}

func compareEquality(equal bool, op domain.ComparisonOperator, left, right any) (bool, error) {
	switch op {
	case domain.OpEqual:
		return equal, nil
	case domain.OpNotEqual:
		return !equal, nil
	default:
		return false, notComparable(left, op, right)
	}
}

func compareMismatched(left any, op domain.ComparisonOperator, right any) (bool, error) {
	return compareEquality(false, op, left, right)
}

func notComparable(left any, op domain.ComparisonOperator, right any) error {
	return NewEvaluationError(
		fmt.Sprintf("%s %s %s", Stringify(left), op, Stringify(right)),
		fmt.Sprintf("cannot order %s and %s", typeName(left), typeName(right)),
		nil,
	)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "empty"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		if isNumber(v) {
			return "number"
		}
		return fmt.Sprintf("%T", v)
	}
}

package dsl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shaiso/piper/internal/domain"
)

const indent = "    "

// Format печатает pipeline в текст, который снова разбирается Parse
// в эквивалентный AST.
func Format(p *domain.Pipeline) string {
	var b strings.Builder

	b.WriteString("pipeline ")
	b.WriteString(p.Name)
	if len(p.Parameters) > 0 {
		b.WriteString("(")
		for i, param := range p.Parameters {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(param.Name)
			if param.Default != nil {
				b.WriteString(" = ")
				b.WriteString(FormatValue(param.Default))
			}
		}
		b.WriteString(")")
	}
	b.WriteString(" {\n")

	var sections []string

	if len(p.Metadata) > 0 {
		var meta strings.Builder
		meta.WriteString(indent + "meta {\n")
		for _, key := range sortedKeys(p.Metadata) {
			fmt.Fprintf(&meta, "%s%s%s: %s\n", indent, indent, formatKey(key), FormatValue(p.Metadata[key]))
		}
		meta.WriteString(indent + "}\n")
		sections = append(sections, meta.String())
	}

	if len(p.DataOrder) > 0 {
		var data strings.Builder
		for _, name := range p.DataOrder {
			fmt.Fprintf(&data, "%s%s = %s\n", indent, name, formatDataValue(p.DataLiterals[name]))
		}
		sections = append(sections, data.String())
	}

	if len(p.TaskOrder) > 0 {
		var tasks strings.Builder
		for _, name := range p.TaskOrder {
			fmt.Fprintf(&tasks, "%s%s = %s\n", indent, name, FormatTask(p.Tasks[name]))
		}
		sections = append(sections, tasks.String())
	}

	if p.Flow != nil {
		sections = append(sections, indent+"flow: "+FormatFlow(p.Flow)+"\n")
	}

	b.WriteString(strings.Join(sections, "\n"))
	b.WriteString("}\n")
	return b.String()
}

// formatDataValue печатает значение data literal. Вызов функции
// берётся в #{...}, иначе он будет разобран как объявление задачи.
func formatDataValue(v domain.Value) string {
	if call, ok := v.(domain.FunctionCall); ok {
		return "#{" + FormatValue(call) + "}"
	}
	return FormatValue(v)
}

// FormatTask печатает вызов задачи: type(arg = value, ...).
func FormatTask(t *domain.Task) string {
	args := t.Arguments
	if len(args) == 0 && len(t.NamedArguments) > 0 {
		for _, name := range sortedKeys(t.NamedArguments) {
			args = append(args, domain.Argument{Name: name, Value: t.NamedArguments[name]})
		}
	}
	return string(t.Type) + "(" + formatArguments(args) + ")"
}

func formatArguments(args []domain.Argument) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg.Name != "" {
			parts = append(parts, arg.Name+" = "+FormatValue(arg.Value))
		} else {
			parts = append(parts, FormatValue(arg.Value))
		}
	}
	return strings.Join(parts, ", ")
}

// FormatValue печатает значение в синтаксисе DSL.
func FormatValue(v domain.Value) string {
	switch val := v.(type) {
	case nil:
		return `""`
	case domain.String:
		return quote(string(val))
	case domain.MultilineString:
		return `"""` + string(val) + `"""`
	case domain.Number:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case domain.Boolean:
		return strconv.FormatBool(bool(val))
	case domain.Object:
		parts := make([]string, 0, len(val))
		for _, key := range sortedKeys(val) {
			parts = append(parts, formatKey(key)+": "+FormatValue(val[key]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case domain.Array:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, FormatValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case domain.VarInterpolation, domain.PropertyAccess, domain.FallbackExpr, domain.ConditionalValue:
		return "#{" + formatExpression(v) + "}"
	case domain.FunctionCall:
		return val.Name + "(" + formatArguments(val.Arguments) + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatExpression печатает значение в виде содержимого #{...}.
func formatExpression(v domain.Value) string {
	switch val := v.(type) {
	case domain.VarInterpolation:
		return string(val)
	case domain.PropertyAccess:
		return val.Base + "." + strings.Join(val.Path, ".")
	case domain.FallbackExpr:
		// Левый операнд со вложенным fallback оборачивается, чтобы
		// сохранить форму дерева.
		primary := formatOperand(val.Primary)
		fallback := formatOperand(val.Fallback)
		if _, ok := val.Fallback.(domain.FallbackExpr); ok {
			fallback = formatExpression(val.Fallback)
		}
		return primary + " || " + fallback
	case domain.ConditionalValue:
		return FormatCondition(val.Condition) + " ? " + formatOperand(val.Then) + " : " + formatOperand(val.Else)
	default:
		return FormatValue(v)
	}
}

// formatOperand печатает операнд fallback или ветку тернарного выражения.
func formatOperand(v domain.Value) string {
	switch v.(type) {
	case domain.VarInterpolation, domain.PropertyAccess:
		return formatExpression(v)
	default:
		return FormatValue(v)
	}
}

// FormatCondition печатает условие. Правый операнд-цепочка берётся
// в скобки, так как цепочки сворачиваются слева.
func FormatCondition(c domain.Condition) string {
	switch cond := c.(type) {
	case domain.Comparison:
		return FormatValue(cond.Left) + " " + string(cond.Operator) + " " + FormatValue(cond.Right)
	case domain.BoolCondition:
		return strconv.FormatBool(bool(cond))
	case domain.VarCondition:
		return "#{" + string(cond) + "}"
	case domain.LogicalOperation:
		right := FormatCondition(cond.Right)
		if _, ok := cond.Right.(domain.LogicalOperation); ok {
			right = "(" + right + ")"
		}
		return FormatCondition(cond.Left) + " " + string(cond.Operator) + " " + right
	default:
		return fmt.Sprintf("%v", c)
	}
}

// FormatFlow печатает flow в синтаксисе секции flow:.
func FormatFlow(f domain.Flow) string {
	switch fl := f.(type) {
	case domain.Sequential:
		parts := make([]string, 0, len(fl.Items))
		for _, item := range fl.Items {
			parts = append(parts, formatSequenceItem(item))
		}
		return strings.Join(parts, " > ")
	case domain.Parallel:
		parts := make([]string, 0, len(fl.Items))
		for _, item := range fl.Items {
			parts = append(parts, formatFlowItem(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case domain.Conditional:
		var b strings.Builder
		b.WriteString("(")
		b.WriteString(FormatCondition(fl.Condition))
		b.WriteString(" ? ")
		if fl.Then != nil {
			b.WriteString(formatFlowItem(*fl.Then))
		}
		if fl.Else != nil {
			b.WriteString(" : ")
			b.WriteString(formatFlowItem(*fl.Else))
		}
		b.WriteString(")")
		return b.String()
	default:
		return ""
	}
}

// formatFlowItem печатает элемент, стоящий на месте flow_expr.
func formatFlowItem(item domain.FlowItem) string {
	if item.IsTask() {
		return item.Task
	}
	return FormatFlow(item.Flow)
}

// formatSequenceItem печатает элемент последовательности:
// вложенная последовательность берётся в скобки.
func formatSequenceItem(item domain.FlowItem) string {
	if seq, ok := item.Flow.(domain.Sequential); ok {
		return "(" + FormatFlow(seq) + ")"
	}
	return formatFlowItem(item)
}

func formatKey(key string) string {
	if isIdentifier(key) {
		return key
	}
	return quote(key)
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package domain

// Value — значение в DSL.
//
// Закрытое множество вариантов: реализовать интерфейс могут только
// типы этого пакета. Вычисление значений выполняет engine.Evaluator.
type Value interface {
	isValue()
}

// String — строковый литерал "...".
// Может содержать встроенные выражения #{...}.
type String string

// MultilineString — многострочный литерал """...""".
type MultilineString string

// Number — числовой литерал.
type Number float64

// Boolean — true / false.
type Boolean bool

// Object — объект {k: v}. Порядок ключей не значим.
type Object map[string]Value

// Array — массив [a, b].
type Array []Value

// VarInterpolation — ссылка на переменную: #{name} или голый идентификатор.
type VarInterpolation string

// PropertyAccess — доступ к вложенному полю: #{a.b.c}.
type PropertyAccess struct {
	Base string
	Path []string
}

// FallbackExpr — #{primary || fallback}.
// Fallback вычисляется только если Primary пустой.
type FallbackExpr struct {
	Primary  Value
	Fallback Value
}

// FunctionCall — вызов функции name(args...).
type FunctionCall struct {
	Name      string
	Arguments []Argument
}

// ConditionalValue — тернарное выражение cond ? then : else.
type ConditionalValue struct {
	Condition Condition
	Then      Value
	Else      Value
}

func (String) isValue()           {}
func (MultilineString) isValue()  {}
func (Number) isValue()           {}
func (Boolean) isValue()          {}
func (Object) isValue()           {}
func (Array) isValue()            {}
func (VarInterpolation) isValue() {}
func (PropertyAccess) isValue()   {}
func (FallbackExpr) isValue()     {}
func (FunctionCall) isValue()     {}
func (ConditionalValue) isValue() {}

package domain

// Flow — структура выполнения задач.
//
// Варианты:
//   - Sequential — элементы по порядку, остановка на первой ошибке
//   - Parallel — элементы конкурентно, все доводятся до конца
//   - Conditional — одна из двух веток по условию
type Flow interface {
	isFlow()
}

// Sequential — последовательный flow: a > b > c.
type Sequential struct {
	Items []FlowItem
}

// Parallel — параллельный flow: [a, b, c].
type Parallel struct {
	Items []FlowItem
}

// Conditional — условный flow: (cond ? then : else).
// Else может быть nil.
type Conditional struct {
	Condition Condition
	Then      *FlowItem
	Else      *FlowItem
}

func (Sequential) isFlow()  {}
func (Parallel) isFlow()    {}
func (Conditional) isFlow() {}

// FlowItem — элемент flow: ссылка на задачу по имени или вложенный flow.
// Заполнено ровно одно поле.
type FlowItem struct {
	Task string
	Flow Flow
}

// TaskRef создаёт FlowItem со ссылкой на задачу.
func TaskRef(name string) FlowItem {
	return FlowItem{Task: name}
}

// SubFlow создаёт FlowItem с вложенным flow.
func SubFlow(f Flow) FlowItem {
	return FlowItem{Flow: f}
}

// IsTask возвращает true, если элемент ссылается на задачу.
func (i FlowItem) IsTask() bool {
	return i.Flow == nil
}

// TaskRefs возвращает имена всех задач, на которые ссылается flow,
// в порядке обхода (с повторами).
func TaskRefs(f Flow) []string {
	var names []string
	var walkItem func(item *FlowItem)
	var walk func(f Flow)

	walkItem = func(item *FlowItem) {
		if item == nil {
			return
		}
		if item.IsTask() {
			names = append(names, item.Task)
			return
		}
		walk(item.Flow)
	}

	walk = func(f Flow) {
		switch fl := f.(type) {
		case Sequential:
			for i := range fl.Items {
				walkItem(&fl.Items[i])
			}
		case Parallel:
			for i := range fl.Items {
				walkItem(&fl.Items[i])
			}
		case Conditional:
			walkItem(fl.Then)
			walkItem(fl.Else)
		}
	}

	walk(f)
	return names
}

// Condition — логическое условие.
//
// LogicalOperation сворачивается слева направо без приоритетов:
// a && b || c == ((a && b) || c).
type Condition interface {
	isCondition()
}

// Comparison — сравнение двух значений.
type Comparison struct {
	Left     Value
	Operator ComparisonOperator
	Right    Value
}

// BoolCondition — литерал true / false.
type BoolCondition bool

// VarCondition — истинность переменной: #{flag}.
type VarCondition string

// LogicalOperation — a && b, a || b.
type LogicalOperation struct {
	Left     Condition
	Operator LogicalOperator
	Right    Condition
}

func (Comparison) isCondition()       {}
func (BoolCondition) isCondition()    {}
func (VarCondition) isCondition()     {}
func (LogicalOperation) isCondition() {}

// ComparisonOperator — оператор сравнения.
type ComparisonOperator string

const (
	OpEqual        ComparisonOperator = "=="
	OpNotEqual     ComparisonOperator = "!="
	OpGreater      ComparisonOperator = ">"
	OpLess         ComparisonOperator = "<"
	OpGreaterEqual ComparisonOperator = ">="
	OpLessEqual    ComparisonOperator = "<="
)

// LogicalOperator — логический оператор.
type LogicalOperator string

const (
	OpAnd LogicalOperator = "&&"
	OpOr  LogicalOperator = "||"
)

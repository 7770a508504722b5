package domain

import "fmt"

// Pipeline — скомпилированное описание pipeline.
//
// Pipeline создаётся компилятором DSL (пакет dsl) и после этого
// не изменяется: интерпретатор только читает его.
type Pipeline struct {
	// Name — имя pipeline из заголовка.
	Name string `json:"name"`

	// Parameters — параметры в порядке объявления.
	Parameters []Parameter `json:"parameters,omitempty"`

	// Metadata — содержимое блока meta { ... }.
	Metadata map[string]Value `json:"-"`

	// DataLiterals — именованные значения уровня pipeline.
	DataLiterals map[string]Value `json:"-"`

	// DataOrder — порядок объявления DataLiterals.
	DataOrder []string `json:"-"`

	// Tasks — задачи по имени.
	Tasks map[string]*Task `json:"-"`

	// TaskOrder — порядок объявления задач.
	// Используется при печати и для неявного последовательного flow.
	TaskOrder []string `json:"tasks"`

	// Flow — корневой flow. Nil, если секция flow не объявлена.
	Flow Flow `json:"-"`
}

// NewPipeline создаёт пустой pipeline с инициализированными map.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		Name:         name,
		Metadata:     make(map[string]Value),
		DataLiterals: make(map[string]Value),
		Tasks:        make(map[string]*Task),
	}
}

// AddTask добавляет задачу, сохраняя порядок объявления.
// Возвращает false, если задача с таким именем уже есть.
func (p *Pipeline) AddTask(name string, task *Task) bool {
	if _, exists := p.Tasks[name]; exists {
		return false
	}
	p.Tasks[name] = task
	p.TaskOrder = append(p.TaskOrder, name)
	return true
}

// SetData добавляет или заменяет data literal.
func (p *Pipeline) SetData(name string, value Value) {
	if _, exists := p.DataLiterals[name]; !exists {
		p.DataOrder = append(p.DataOrder, name)
	}
	p.DataLiterals[name] = value
}

// Task возвращает задачу по имени.
func (p *Pipeline) Task(name string) (*Task, bool) {
	t, ok := p.Tasks[name]
	return t, ok
}

// TaskNames возвращает имена задач в порядке объявления.
func (p *Pipeline) TaskNames() []string {
	names := make([]string, len(p.TaskOrder))
	copy(names, p.TaskOrder)
	return names
}

// IsMeta возвращает true, если pipeline содержит хотя бы одну задачу
// генерации (meta_task, generate_tasks, generate_flow).
func (p *Pipeline) IsMeta() bool {
	for _, name := range p.TaskOrder {
		if p.Tasks[name].Type.IsMeta() {
			return true
		}
	}
	return false
}

// MetadataString возвращает строковое значение метаданных.
// Для не-строковых значений возвращает "".
func (p *Pipeline) MetadataString(key string) string {
	switch v := p.Metadata[key].(type) {
	case String:
		return string(v)
	case MultilineString:
		return string(v)
	default:
		return ""
	}
}

// ImplicitFlow возвращает flow, который выполняется при отсутствии
// секции flow: все задачи последовательно в порядке объявления.
func (p *Pipeline) ImplicitFlow() Flow {
	items := make([]FlowItem, 0, len(p.TaskOrder))
	for _, name := range p.TaskOrder {
		items = append(items, TaskRef(name))
	}
	return Sequential{Items: items}
}

// EffectiveFlow возвращает объявленный flow или неявный.
func (p *Pipeline) EffectiveFlow() Flow {
	if p.Flow != nil {
		return p.Flow
	}
	return p.ImplicitFlow()
}

// Parameter — параметр pipeline.
type Parameter struct {
	Name string `json:"name"`

	// Default — значение по умолчанию. Nil, если не задано.
	Default Value `json:"-"`
}

// Argument — аргумент вызова задачи.
// Name пустой для позиционных аргументов.
type Argument struct {
	Name  string
	Value Value
}

// Task — объявление задачи в pipeline.
type Task struct {
	Type TaskType

	// Arguments — все аргументы в порядке записи.
	Arguments []Argument

	// NamedArguments — именованные аргументы (при повторе побеждает последний).
	NamedArguments map[string]Value

	// Специализированные конфигурации задач генерации.
	// Заполнено не больше одного поля, в соответствии с Type.
	MetaTask      *MetaTaskConfig
	GenerateTasks *GenerateTasksConfig
	GenerateFlow  *GenerateFlowConfig
}

// Arg возвращает именованный аргумент.
func (t *Task) Arg(name string) (Value, bool) {
	v, ok := t.NamedArguments[name]
	return v, ok
}

// OutputKey — имя аргумента, задающего переменную для результата задачи.
const OutputKey = "output"

// Output возвращает имя переменной, в которую сохраняется результат
// задачи. Пустая строка, если переменная не объявлена.
func (t *Task) Output() string {
	switch v := t.NamedArguments[OutputKey].(type) {
	case String:
		return string(v)
	case VarInterpolation:
		return string(v)
	default:
		return ""
	}
}

// TaskType — тип задачи.
type TaskType string

const (
	TaskTypeCmd           TaskType = "cmd"
	TaskTypeScript        TaskType = "script"
	TaskTypeLLM           TaskType = "llm"
	TaskTypeHTTP          TaskType = "http"
	TaskTypeNotify        TaskType = "notify"
	TaskTypeSetVar        TaskType = "set_var"
	TaskTypeLua           TaskType = "lua"
	TaskTypeMetaTask      TaskType = "meta_task"
	TaskTypeGenerateTasks TaskType = "generate_tasks"
	TaskTypeGenerateFlow  TaskType = "generate_flow"
)

// TaskTypes — все известные типы задач.
var TaskTypes = []TaskType{
	TaskTypeCmd,
	TaskTypeScript,
	TaskTypeLLM,
	TaskTypeHTTP,
	TaskTypeNotify,
	TaskTypeSetVar,
	TaskTypeLua,
	TaskTypeMetaTask,
	TaskTypeGenerateTasks,
	TaskTypeGenerateFlow,
}

// ParseTaskType парсит строку в TaskType.
func ParseTaskType(s string) (TaskType, bool) {
	for _, t := range TaskTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// String возвращает строковое представление TaskType.
func (t TaskType) String() string {
	return string(t)
}

// IsMeta возвращает true для типов, которые требуют генерации.
func (t TaskType) IsMeta() bool {
	switch t {
	case TaskTypeMetaTask, TaskTypeGenerateTasks, TaskTypeGenerateFlow:
		return true
	default:
		return false
	}
}

// MetaTaskConfig — конфигурация meta_task.
type MetaTaskConfig struct {
	Task      string
	DataShape string
}

// GenerateTasksConfig — конфигурация generate_tasks.
type GenerateTasksConfig struct {
	MetaTasks   []string
	CustomTasks []string
	Model       string
	Style       *string
}

// GenerateFlowConfig — конфигурация generate_flow.
type GenerateFlowConfig struct {
	Tasks         []string
	Constraints   []string
	Description   string
	Model         string
	Visualization *bool
}

// Describe возвращает человекочитаемое описание задачи генерации.
// Используется генератором-заглушкой.
func (t *Task) Describe() string {
	switch {
	case t.MetaTask != nil:
		return t.MetaTask.Task
	case t.GenerateTasks != nil:
		return fmt.Sprintf("generate tasks %v", t.GenerateTasks.MetaTasks)
	case t.GenerateFlow != nil:
		if t.GenerateFlow.Description != "" {
			return t.GenerateFlow.Description
		}
		return fmt.Sprintf("generate flow for %v", t.GenerateFlow.Tasks)
	default:
		return string(t.Type)
	}
}

package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/engine"
)

// Task — экземпляр задачи, готовый к выполнению.
//
// Каждый тип задачи (cmd, http, notify, set_var, lua, script, llm)
// реализует этот интерфейс. Экземпляр создаётся фабрикой из Registry
// на каждый вызов с уже вычисленными аргументами.
type Task interface {
	// Validate проверяет аргументы без побочных эффектов.
	// Вызывается до Execute; ошибка предотвращает выполнение.
	Validate() error

	// Execute выполняет задачу. Может читать и писать контекст run
	// и записывает поля результата в sink.
	// Задача должна проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, vars *engine.Context, sink *ResultSink) error

	// Describe возвращает статические метаданные задачи.
	Describe() Metadata
}

// Metadata — описание экземпляра задачи.
type Metadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Kind        domain.TaskType `json:"task_kind"`
}

// Spec — входные данные фабрики задачи.
type Spec struct {
	// Name — имя задачи в pipeline.
	Name string

	// Type — тип задачи.
	Type domain.TaskType

	// Args — вычисленные именованные аргументы.
	Args map[string]any

	// Positional — вычисленные позиционные аргументы в порядке записи.
	Positional []any
}

// NewSpec создаёт Spec.
func NewSpec(name string, typ domain.TaskType, args map[string]any, positional []any) Spec {
	if args == nil {
		args = make(map[string]any)
	}
	return Spec{Name: name, Type: typ, Args: args, Positional: positional}
}

// arg возвращает именованный аргумент, а при его отсутствии —
// позиционный аргумент с индексом pos (pos < 0 — без позиционного).
func (s Spec) arg(key string, pos int) any {
	if v, ok := s.Args[key]; ok {
		return v
	}
	if pos >= 0 && pos < len(s.Positional) {
		return s.Positional[pos]
	}
	return nil
}

// base — общая часть всех задач.
type base struct {
	spec Spec
	meta Metadata
}

func newBase(spec Spec) base {
	return base{
		spec: spec,
		meta: Metadata{
			Name:        spec.Name,
			Description: GetConfigString(spec.Args, "description"),
			Timestamp:   time.Now().UTC(),
			Kind:        spec.Type,
		},
	}
}

// Describe возвращает метаданные задачи.
func (b *base) Describe() Metadata {
	return b.meta
}

// record записывает общие поля результата.
func (b *base) record(sink *ResultSink, status string) {
	sink.SetMany(map[string]any{
		"status":    status,
		"timestamp": b.meta.Timestamp.Format(time.RFC3339),
		"task_type": string(b.meta.Kind),
	})
}

// Статусы в поле "status" результата.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ResultSink — поля результата одного вызова задачи.
//
// Поля доступны в следующих задачах как <имя_задачи>.<поле>,
// основной результат — через переменную из аргумента output.
// Потокобезопасен.
type ResultSink struct {
	mu        sync.RWMutex
	fields    map[string]any
	output    any
	hasOutput bool
}

// NewResultSink создаёт пустой ResultSink.
func NewResultSink() *ResultSink {
	return &ResultSink{fields: make(map[string]any)}
}

// Set записывает поле.
func (s *ResultSink) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[key] = value
}

// SetMany записывает несколько полей.
func (s *ResultSink) SetMany(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.fields[k] = v
	}
}

// Get возвращает поле.
func (s *ResultSink) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.fields[key]
	return v, ok
}

// SetOutput задаёт основной результат задачи.
func (s *ResultSink) SetOutput(value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = value
	s.hasOutput = true
}

// Output возвращает основной результат задачи.
func (s *ResultSink) Output() (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output, s.hasOutput
}

// Fields возвращает копию всех полей.
func (s *ResultSink) Fields() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out
}

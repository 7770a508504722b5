package tasks

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/shaiso/piper/internal/domain"
	"github.com/shaiso/piper/internal/llm"
)

// Factory создаёт экземпляр задачи из вычисленных аргументов.
type Factory func(spec Spec) Task

// Registry — реестр реализаций задач по типу.
//
// Заполняется один раз при старте; Build вызывается на каждый запуск задачи.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.TaskType]Factory
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[domain.TaskType]Factory),
	}
}

// Options — зависимости стандартных задач.
type Options struct {
	// HTTPClient используется задачей notify. Nil — клиент по умолчанию.
	HTTPClient *http.Client

	// LLM используется задачей llm. Nil — llm.NewAnthropic().
	LLM llm.Client

	// Shell — интерпретатор задачи cmd. Пусто — "sh".
	Shell string
}

// DefaultRegistry создаёт реестр со всеми стандартными задачами.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()

	if opts.LLM == nil {
		opts.LLM = llm.NewAnthropic()
	}

	// Регистрируем все стандартные задачи
	r.mustRegister(domain.TaskTypeCmd, NewCommandTask(opts.Shell))
	r.mustRegister(domain.TaskTypeHTTP, NewHTTPTask)
	r.mustRegister(domain.TaskTypeNotify, NewNotifyTask(opts.HTTPClient))
	r.mustRegister(domain.TaskTypeSetVar, NewSetVarTask)
	r.mustRegister(domain.TaskTypeLua, NewLuaTask)
	r.mustRegister(domain.TaskTypeScript, NewScriptTask)
	r.mustRegister(domain.TaskTypeLLM, NewLLMTask(opts.LLM))

	return r
}

func (r *Registry) mustRegister(typ domain.TaskType, f Factory) {
	if err := r.Register(typ, f); err != nil {
		panic(err)
	}
}

// Register регистрирует фабрику для типа задачи.
// Повторная регистрация типа возвращает ErrDuplicateTaskName.
func (r *Registry) Register(typ domain.TaskType, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typ]; exists {
		return NewDuplicateTaskName(string(typ))
	}
	r.factories[typ] = f
	return nil
}

// Get возвращает фабрику по типу.
// Возвращает ErrBackendNotFound, если тип не зарегистрирован.
func (r *Registry) Get(typ domain.TaskType) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.factories[typ]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, typ)
	}
	return f, nil
}

// Build создаёт экземпляр задачи.
// Задачи генерации не выполняются: мета-пайплайн должен быть материализован.
func (r *Registry) Build(spec Spec) (Task, error) {
	if spec.Type.IsMeta() {
		return nil, NewValidationError(spec.Name, fmt.Sprintf("%s task must be materialized before execution", spec.Type))
	}
	f, err := r.Get(spec.Type)
	if err != nil {
		return nil, err
	}
	return f(spec), nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(typ domain.TaskType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[typ]
	return exists
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []domain.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.TaskType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Unregister удаляет тип из реестра.
func (r *Registry) Unregister(typ domain.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, typ)
}

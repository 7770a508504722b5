package engine

import (
	"sort"
	"strconv"
	"sync"
)

// Context — хранилище переменных одного run.
//
// Читается и пишется конкурентно из веток Parallel, поэтому все
// операции защищены мьютексом. Для веток Parallel используется Fork:
// ветка работает со своей копией, а после завершения всех веток её
// записи применяются к родителю через Merge в порядке объявления.
type Context struct {
	mu    sync.RWMutex
	vars  map[string]any
	dirty map[string]struct{} // ключи, записанные в ответвлённом контексте
}

// NewContext создаёт контекст с начальными переменными.
func NewContext(initial map[string]any) *Context {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &Context{vars: vars}
}

// Get возвращает значение переменной.
func (c *Context) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[name]
	return v, ok
}

// Set записывает переменную.
func (c *Context) Set(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(name, value)
}

// SetMany атомарно записывает несколько переменных.
func (c *Context) SetMany(values map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range values {
		c.setLocked(k, v)
	}
}

func (c *Context) setLocked(name string, value any) {
	c.vars[name] = value
	if c.dirty != nil {
		c.dirty[name] = struct{}{}
	}
}

// Lookup возвращает вложенное значение base.path[0].path[1]...
// Поддерживает map[string]any, map[string]string и срезы с числовым индексом.
func (c *Context) Lookup(base string, path []string) (any, bool) {
	current, ok := c.Get(base)
	if !ok {
		return nil, false
	}
	for _, key := range path {
		current, ok = lookupField(current, key)
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func lookupField(v any, key string) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		field, ok := val[key]
		return field, ok
	case map[string]string:
		field, ok := val[key]
		return field, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(val) {
			return nil, false
		}
		return val[i], true
	case []string:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(val) {
			return nil, false
		}
		return val[i], true
	default:
		return nil, false
	}
}

// Snapshot возвращает поверхностную копию всех переменных.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Keys возвращает отсортированный список имён переменных.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.vars))
	for k := range c.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fork создаёт контекст ветки: копию текущих переменных,
// который запоминает свои записи.
func (c *Context) Fork() *Context {
	return &Context{
		vars:  c.Snapshot(),
		dirty: make(map[string]struct{}),
	}
}

// Merge применяет записи ответвлённого контекста к текущему.
func (c *Context) Merge(child *Context) {
	child.mu.RLock()
	writes := make(map[string]any, len(child.dirty))
	for k := range child.dirty {
		writes[k] = child.vars[k]
	}
	child.mu.RUnlock()

	c.SetMany(writes)
}

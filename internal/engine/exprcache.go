package engine

import (
	"container/list"
	"sync"

	"github.com/shaiso/piper/internal/domain"
)

// defaultExprCacheSize — сколько разобранных #{...} держит Evaluator.
const defaultExprCacheSize = 1024

// exprCache — LRU разобранных выражений. Запоминаются и ошибки разбора
// (value == nil, ok == false), чтобы битый фрагмент не разбирался заново.
type exprCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type exprEntry struct {
	src   string
	value domain.Value
	ok    bool
}

func newExprCache(capacity int) *exprCache {
	return &exprCache{
		max:     capacity,
		order:   list.New(),
		entries: make(map[string]*list.Element, capacity),
	}
}

func (c *exprCache) get(src string) (exprEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[src]
	if !ok {
		return exprEntry{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(exprEntry), true
}

func (c *exprCache) add(e exprEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[e.src]; ok {
		elem.Value = e
		c.order.MoveToFront(elem)
		return
	}
	c.entries[e.src] = c.order.PushFront(e)

	if c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(exprEntry).src)
	}
}

func (c *exprCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

package engine

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestContext_GetSet(t *testing.T) {
	c := NewContext(map[string]any{"a": "1"})

	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("expected a=1, got %v (%v)", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected missing variable to be absent")
	}

	c.SetMany(map[string]any{"b": 2.0, "c": true})
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected keys: %v", got)
	}
}

func TestContext_NewContextCopiesInitial(t *testing.T) {
	initial := map[string]any{"a": "1"}
	c := NewContext(initial)
	c.Set("a", "2")

	if initial["a"] != "1" {
		t.Error("NewContext should not share the initial map")
	}
}

func TestContext_Lookup(t *testing.T) {
	c := NewContext(map[string]any{
		"fetch": map[string]any{
			"status":  200.0,
			"headers": map[string]string{"Content-Type": "text/plain"},
			"items":   []any{map[string]any{"id": "x"}},
		},
		"tags": []string{"a", "b"},
	})

	tests := []struct {
		name     string
		base     string
		path     []string
		expected any
		found    bool
	}{
		{name: "top level", base: "fetch", path: []string{"status"}, expected: 200.0, found: true},
		{name: "string map", base: "fetch", path: []string{"headers", "Content-Type"}, expected: "text/plain", found: true},
		{name: "index then field", base: "fetch", path: []string{"items", "0", "id"}, expected: "x", found: true},
		{name: "string slice", base: "tags", path: []string{"1"}, expected: "b", found: true},
		{name: "index out of range", base: "tags", path: []string{"5"}},
		{name: "non numeric index", base: "tags", path: []string{"first"}},
		{name: "missing base", base: "nope", path: []string{"x"}},
		{name: "scalar has no fields", base: "fetch", path: []string{"status", "code"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Lookup(tt.base, tt.path)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %#v, want %#v", got, tt.expected)
			}
		})
	}
}

func TestContext_ForkMerge(t *testing.T) {
	parent := NewContext(map[string]any{"x": "0", "shared": "parent"})

	first := parent.Fork()
	second := parent.Fork()

	first.Set("x", "first")
	first.Set("only_first", 1.0)
	second.Set("x", "second")

	// Ветка видит значения родителя на момент Fork.
	if v, _ := second.Get("shared"); v != "parent" {
		t.Errorf("fork should see parent values, got %v", v)
	}

	// Изменение родителя после Fork не перезаписывается ключами, которые ветка не писала.
	parent.Set("shared", "updated")

	parent.Merge(first)
	parent.Merge(second)

	expected := map[string]any{
		"x":          "second",
		"only_first": 1.0,
		"shared":     "updated",
	}
	if got := parent.Snapshot(); !reflect.DeepEqual(got, expected) {
		t.Errorf("unexpected merge result: %v", got)
	}
}

func TestContext_NestedFork(t *testing.T) {
	root := NewContext(nil)
	branch := root.Fork()
	leaf := branch.Fork()

	leaf.Set("deep", "v")
	branch.Merge(leaf)
	root.Merge(branch)

	if v, _ := root.Get("deep"); v != "v" {
		t.Errorf("nested fork writes should reach the root, got %v", v)
	}
}

func TestContext_ConcurrentAccess(t *testing.T) {
	c := NewContext(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			c.Set(key, i)
			c.Get(key)
			c.Snapshot()
		}(i)
	}
	wg.Wait()

	if n := len(c.Keys()); n != 20 {
		t.Errorf("expected 20 keys, got %d", n)
	}
}

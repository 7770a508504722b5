package engine

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuiltinFunctions(t *testing.T) {
	f := DefaultFunctions()

	tests := []struct {
		name     string
		fn       string
		args     []any
		expected any
	}{
		{name: "json", fn: "json", args: []any{map[string]any{"a": 1.0}}, expected: `{"a":1}`},
		{name: "fromJSON", fn: "fromJSON", args: []any{`[1,"x"]`}, expected: []any{1.0, "x"}},
		{name: "fromJSON invalid", fn: "fromJSON", args: []any{`{`}, expected: nil},
		{name: "default uses fallback", fn: "default", args: []any{"def", ""}, expected: "def"},
		{name: "default keeps value", fn: "default", args: []any{"def", "v"}, expected: "v"},
		{name: "coalesce", fn: "coalesce", args: []any{nil, "", "b", "c"}, expected: "b"},
		{name: "join", fn: "join", args: []any{",", []any{"a", 1.0}}, expected: "a,1"},
		{name: "split", fn: "split", args: []any{",", "a,b"}, expected: []any{"a", "b"}},
		{name: "contains string", fn: "contains", args: []any{"pipeline", "pipe"}, expected: true},
		{name: "contains list", fn: "contains", args: []any{[]any{"a", "b"}, "c"}, expected: false},
		{name: "hasPrefix", fn: "hasPrefix", args: []any{"release-1", "release"}, expected: true},
		{name: "hasSuffix", fn: "hasSuffix", args: []any{"main.go", ".rs"}, expected: false},
		{name: "lower", fn: "lower", args: []any{"ABC"}, expected: "abc"},
		{name: "trim", fn: "trim", args: []any{"  x "}, expected: "x"},
		{name: "replace", fn: "replace", args: []any{"a-b-c", "-", "_"}, expected: "a_b_c"},
		{name: "concat", fn: "concat", args: []any{"v", 2.0, true}, expected: "v2true"},
		{name: "len list", fn: "len", args: []any{[]any{1.0, 2.0}}, expected: 2.0},
		{name: "len unset", fn: "len", args: []any{nil}, expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Call(tt.fn, tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %#v, want %#v", got, tt.expected)
			}
		})
	}
}

func TestFunctions_Env(t *testing.T) {
	t.Setenv("PIPER_TEST_VALUE", "from-env")

	got, err := DefaultFunctions().Call("env", []any{"PIPER_TEST_VALUE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-env" {
		t.Errorf("expected from-env, got %v", got)
	}
}

func TestFunctions_Arity(t *testing.T) {
	_, err := DefaultFunctions().Call("upper", nil)
	if !errors.Is(err, ErrEvaluation) {
		t.Errorf("expected ErrEvaluation, got %v", err)
	}
	if errors.Is(err, ErrUnknownFunction) {
		t.Error("arity error should not be reported as unknown function")
	}
}

func TestFunctions_Registry(t *testing.T) {
	f := NewFunctions()
	if f.Has("upper") {
		t.Error("empty registry should not have builtins")
	}

	f.Register("b", func([]any) (any, error) { return nil, nil })
	f.Register("a", func([]any) (any, error) { return nil, nil })

	if !reflect.DeepEqual(f.Names(), []string{"a", "b"}) {
		t.Errorf("unexpected names: %v", f.Names())
	}
}

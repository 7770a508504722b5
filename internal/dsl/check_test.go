package dsl

import (
	"errors"
	"testing"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected []error
	}{
		{
			name: "clean pipeline",
			src: `pipeline p {
    a = cmd(command = "true")
    b = cmd(command = "true")
    flow: a > b
}`,
		},
		{
			name: "no flow declared",
			src: `pipeline p {
    a = cmd(command = "true")
}`,
		},
		{
			name: "unknown task in flow",
			src: `pipeline p {
    a = cmd(command = "true")
    flow: a > ghost
}`,
			expected: []error{ErrUnknownTask},
		},
		{
			name: "unreferenced task",
			src: `pipeline p {
    a = cmd(command = "true")
    b = cmd(command = "true")
    flow: a
}`,
			expected: []error{ErrUnreachableTask},
		},
		{
			name: "meta task",
			src: `pipeline p {
    m = meta_task(task = "anything")
}`,
			expected: []error{ErrUnmaterialized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			errs := Check(p)
			if len(errs) != len(tt.expected) {
				t.Fatalf("expected %d errors, got %d: %v", len(tt.expected), len(errs), errs)
			}
			for i, want := range tt.expected {
				if !errors.Is(errs[i], want) {
					t.Errorf("error %d: expected %v, got %v", i, want, errs[i])
				}
			}
		})
	}
}

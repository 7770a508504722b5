package dsl

import (
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/shaiso/piper/internal/domain"
)

func TestFormat_RoundTrip(t *testing.T) {
	original, err := Parse(samplePipeline)
	if err != nil {
		t.Fatalf("parse original: %v", err)
	}

	text := Format(original)
	reparsed, err := Parse(text)
	if err != nil {
		t.Fatalf("parse formatted text: %v\n%s", err, text)
	}

	if !reflect.DeepEqual(original, reparsed) {
		t.Errorf("round trip changed the pipeline:\n%s", text)
	}
}

func TestFormat_Values(t *testing.T) {
	tests := []struct {
		name     string
		value    domain.Value
		expected string
	}{
		{name: "string with quotes", value: domain.String(`a "b"`), expected: `"a \"b\""`},
		{name: "integer number", value: domain.Number(42), expected: "42"},
		{name: "fraction", value: domain.Number(1.5), expected: "1.5"},
		{name: "variable", value: domain.VarInterpolation("x"), expected: "#{x}"},
		{name: "property", value: domain.PropertyAccess{Base: "a", Path: []string{"b"}}, expected: "#{a.b}"},
		{
			name:     "fallback",
			value:    domain.FallbackExpr{Primary: domain.VarInterpolation("a"), Fallback: domain.String("x")},
			expected: `#{a || "x"}`,
		},
		{
			name:     "object keys sorted",
			value:    domain.Object{"b": domain.Number(2), "a": domain.Number(1), "c d": domain.Boolean(true)},
			expected: `{a: 1, b: 2, "c d": true}`,
		},
		{
			name: "function call",
			value: domain.FunctionCall{Name: "join", Arguments: []domain.Argument{
				{Value: domain.String(",")},
				{Value: domain.VarInterpolation("items")},
			}},
			expected: `join(",", #{items})`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.value); got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestFormat_ExpressionRoundTrip(t *testing.T) {
	exprs := []string{
		`a || b || "c"`,
		`#{a || b} || "c"`,
		`#{n} >= 10 ? upper(name) : "small"`,
		`coalesce(a, b, "x")`,
		`cfg.server.port`,
	}

	for _, src := range exprs {
		t.Run(src, func(t *testing.T) {
			v, err := ParseExpression(src)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			p := domain.NewPipeline("p")
			p.SetData("x", v)

			reparsed, err := Parse(Format(p))
			if err != nil {
				t.Fatalf("reparse: %v\n%s", err, Format(p))
			}
			if !reflect.DeepEqual(reparsed.DataLiterals["x"], v) {
				t.Errorf("round trip mismatch: %#v vs %#v", reparsed.DataLiterals["x"], v)
			}
		})
	}
}

func TestFormat_DataLiteralFunctionCall(t *testing.T) {
	p := domain.NewPipeline("p")
	p.SetData("greeting", domain.FunctionCall{Name: "upper", Arguments: []domain.Argument{{Value: domain.String("hi")}}})

	reparsed, err := Parse(Format(p))
	if err != nil {
		t.Fatalf("function call data literal should survive formatting: %v", err)
	}
	if !reflect.DeepEqual(reparsed.DataLiterals["greeting"], p.DataLiterals["greeting"]) {
		t.Errorf("unexpected data literal: %#v", reparsed.DataLiterals["greeting"])
	}
}

// Свойство: печать flow и повторный разбор дают ту же структуру.
func TestFormatFlow_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		flow := drawFlow(t, 3)
		text := fmt.Sprintf("pipeline p {\n    flow: %s\n}\n", FormatFlow(flow))

		p, err := Parse(text)
		if err != nil {
			t.Fatalf("parse %q: %v", text, err)
		}
		if !reflect.DeepEqual(p.Flow, flow) {
			t.Fatalf("flow changed after round trip:\n%s\n got: %#v\nwant: %#v", text, p.Flow, flow)
		}
	})
}

var (
	taskNames = []string{"a", "b", "c", "deploy", "notify"}
	condNames = []string{"flag", "ready"}
)

func drawFlow(t *rapid.T, depth int) domain.Flow {
	kind := rapid.IntRange(0, 2).Draw(t, "kind")
	switch kind {
	case 0:
		n := rapid.IntRange(2, 4).Draw(t, "seq_len")
		items := make([]domain.FlowItem, n)
		for i := range items {
			items[i] = drawItem(t, depth-1)
		}
		return domain.Sequential{Items: items}
	case 1:
		n := rapid.IntRange(1, 3).Draw(t, "par_len")
		items := make([]domain.FlowItem, n)
		for i := range items {
			items[i] = drawItem(t, depth-1)
		}
		return domain.Parallel{Items: items}
	default:
		then := drawItem(t, depth-1)
		flow := domain.Conditional{
			Condition: domain.VarCondition(rapid.SampledFrom(condNames).Draw(t, "cond")),
			Then:      &then,
		}
		if rapid.Bool().Draw(t, "has_else") {
			otherwise := drawItem(t, depth-1)
			flow.Else = &otherwise
		}
		return flow
	}
}

func drawItem(t *rapid.T, depth int) domain.FlowItem {
	if depth <= 0 || rapid.IntRange(0, 2).Draw(t, "nest") > 0 {
		return domain.TaskRef(rapid.SampledFrom(taskNames).Draw(t, "task"))
	}
	return domain.SubFlow(drawFlow(t, depth))
}

package dsl

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/piper/internal/domain"
)

const samplePipeline = `
// деплой с уведомлением
pipeline deploy(env = "staging", version) {
    meta {
        author: "ops"
        "team-name": "platform",
    }

    hosts = ["a", "b"]
    retries = 3

    build = cmd(command = "make build", output = "artifact")
    check = $"uname -a" -> kernel
    notify_team = notify(uri = "http://example.com/hook", message = "built #{artifact}")

    flow: build > [check, notify_team] > (#{env} == "prod" ? notify_team : check)
}
`

func TestParse_FullPipeline(t *testing.T) {
	p, err := Parse(samplePipeline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Name != "deploy" {
		t.Errorf("expected name deploy, got %s", p.Name)
	}

	// Параметры
	if len(p.Parameters) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(p.Parameters))
	}
	if p.Parameters[0].Name != "env" || p.Parameters[0].Default != domain.String("staging") {
		t.Errorf("unexpected first parameter: %+v", p.Parameters[0])
	}
	if p.Parameters[1].Name != "version" || p.Parameters[1].Default != nil {
		t.Errorf("unexpected second parameter: %+v", p.Parameters[1])
	}

	// Метаданные
	if p.MetadataString("author") != "ops" {
		t.Errorf("expected author ops, got %q", p.MetadataString("author"))
	}
	if p.MetadataString("team-name") != "platform" {
		t.Errorf("expected team-name platform, got %q", p.MetadataString("team-name"))
	}

	// Data literals
	if !reflect.DeepEqual(p.DataOrder, []string{"hosts", "retries"}) {
		t.Errorf("unexpected data order: %v", p.DataOrder)
	}
	if p.DataLiterals["retries"] != domain.Number(3) {
		t.Errorf("expected retries 3, got %v", p.DataLiterals["retries"])
	}
	if !reflect.DeepEqual(p.DataLiterals["hosts"], domain.Array{domain.String("a"), domain.String("b")}) {
		t.Errorf("unexpected hosts: %v", p.DataLiterals["hosts"])
	}

	// Задачи
	if !reflect.DeepEqual(p.TaskOrder, []string{"build", "check", "notify_team"}) {
		t.Errorf("unexpected task order: %v", p.TaskOrder)
	}
	build, _ := p.Task("build")
	if build.Type != domain.TaskTypeCmd {
		t.Errorf("expected cmd, got %s", build.Type)
	}
	if build.Output() != "artifact" {
		t.Errorf("expected output artifact, got %q", build.Output())
	}

	check, _ := p.Task("check")
	if check.Type != domain.TaskTypeCmd {
		t.Errorf("inline command should become cmd, got %s", check.Type)
	}
	if check.NamedArguments["command"] != domain.String("uname -a") {
		t.Errorf("unexpected command: %v", check.NamedArguments["command"])
	}
	if check.Output() != "kernel" {
		t.Errorf("expected output kernel, got %q", check.Output())
	}

	notify, _ := p.Task("notify_team")
	if notify.NamedArguments["message"] != domain.String("built #{artifact}") {
		t.Errorf("embedded interpolation should stay in the string, got %v", notify.NamedArguments["message"])
	}

	// Flow
	then := domain.TaskRef("notify_team")
	otherwise := domain.TaskRef("check")
	expected := domain.Sequential{Items: []domain.FlowItem{
		domain.TaskRef("build"),
		domain.SubFlow(domain.Parallel{Items: []domain.FlowItem{
			domain.TaskRef("check"),
			domain.TaskRef("notify_team"),
		}}),
		domain.SubFlow(domain.Conditional{
			Condition: domain.Comparison{
				Left:     domain.VarInterpolation("env"),
				Operator: domain.OpEqual,
				Right:    domain.String("prod"),
			},
			Then: &then,
			Else: &otherwise,
		}),
	}}
	if !reflect.DeepEqual(p.Flow, expected) {
		t.Errorf("unexpected flow:\n got: %#v\nwant: %#v", p.Flow, expected)
	}
}

func TestParse_FlowShapes(t *testing.T) {
	tests := []struct {
		name     string
		flow     string
		expected domain.Flow
	}{
		{
			name:     "single task is sequential",
			flow:     "a",
			expected: domain.Sequential{Items: []domain.FlowItem{domain.TaskRef("a")}},
		},
		{
			name: "top level parallel",
			flow: "[a, b]",
			expected: domain.Parallel{Items: []domain.FlowItem{
				domain.TaskRef("a"), domain.TaskRef("b"),
			}},
		},
		{
			name: "sequence inside parallel",
			flow: "[a > b, c]",
			expected: domain.Parallel{Items: []domain.FlowItem{
				domain.SubFlow(domain.Sequential{Items: []domain.FlowItem{domain.TaskRef("a"), domain.TaskRef("b")}}),
				domain.TaskRef("c"),
			}},
		},
		{
			name: "grouped sequence",
			flow: "(a > b) > c",
			expected: domain.Sequential{Items: []domain.FlowItem{
				domain.SubFlow(domain.Sequential{Items: []domain.FlowItem{domain.TaskRef("a"), domain.TaskRef("b")}}),
				domain.TaskRef("c"),
			}},
		},
		{
			name: "conditional without else",
			flow: "(#{ready} ? a)",
			expected: domain.Conditional{
				Condition: domain.VarCondition("ready"),
				Then:      &domain.FlowItem{Task: "a"},
			},
		},
		{
			name: "conditional with comparison operator",
			flow: "(#{count} > 3 ? a : b)",
			expected: domain.Conditional{
				Condition: domain.Comparison{Left: domain.VarInterpolation("count"), Operator: domain.OpGreater, Right: domain.Number(3)},
				Then:      &domain.FlowItem{Task: "a"},
				Else:      &domain.FlowItem{Task: "b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse("pipeline p {\n flow: " + tt.flow + "\n}")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(p.Flow, tt.expected) {
				t.Errorf("unexpected flow:\n got: %#v\nwant: %#v", p.Flow, tt.expected)
			}
		})
	}
}

func TestParse_ConditionLeftFold(t *testing.T) {
	p, err := Parse(`pipeline p { flow: (#{a} == 1 && #{b} == 2 || #{c} ? x : y) }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cond, ok := p.Flow.(domain.Conditional)
	if !ok {
		t.Fatalf("expected Conditional, got %T", p.Flow)
	}

	// ((a == 1 && b == 2) || c)
	expected := domain.LogicalOperation{
		Left: domain.LogicalOperation{
			Left:     domain.Comparison{Left: domain.VarInterpolation("a"), Operator: domain.OpEqual, Right: domain.Number(1)},
			Operator: domain.OpAnd,
			Right:    domain.Comparison{Left: domain.VarInterpolation("b"), Operator: domain.OpEqual, Right: domain.Number(2)},
		},
		Operator: domain.OpOr,
		Right:    domain.VarCondition("c"),
	}
	if !reflect.DeepEqual(cond.Condition, expected) {
		t.Errorf("unexpected condition:\n got: %#v\nwant: %#v", cond.Condition, expected)
	}
}

func TestParseExpression(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected domain.Value
	}{
		{
			name:     "variable",
			src:      "name",
			expected: domain.VarInterpolation("name"),
		},
		{
			name:     "property access",
			src:      "a.b.c",
			expected: domain.PropertyAccess{Base: "a", Path: []string{"b", "c"}},
		},
		{
			name:     "fallback",
			src:      `a || "x"`,
			expected: domain.FallbackExpr{Primary: domain.VarInterpolation("a"), Fallback: domain.String("x")},
		},
		{
			name: "fallback chain is right nested",
			src:  `a || b || "c"`,
			expected: domain.FallbackExpr{
				Primary:  domain.VarInterpolation("a"),
				Fallback: domain.FallbackExpr{Primary: domain.VarInterpolation("b"), Fallback: domain.String("c")},
			},
		},
		{
			name: "function call",
			src:  `upper(name)`,
			expected: domain.FunctionCall{Name: "upper", Arguments: []domain.Argument{
				{Value: domain.VarInterpolation("name")},
			}},
		},
		{
			name: "ternary with comparison",
			src:  `#{n} > 3 ? "big" : "small"`,
			expected: domain.ConditionalValue{
				Condition: domain.Comparison{Left: domain.VarInterpolation("n"), Operator: domain.OpGreater, Right: domain.Number(3)},
				Then:      domain.String("big"),
				Else:      domain.String("small"),
			},
		},
		{
			name: "ternary on variable",
			src:  `flag ? 1 : 2`,
			expected: domain.ConditionalValue{
				Condition: domain.VarCondition("flag"),
				Then:      domain.Number(1),
				Else:      domain.Number(2),
			},
		},
		{
			name: "object and array",
			src:  `{k: 1, "s k": [true, false]}`,
			expected: domain.Object{
				"k":   domain.Number(1),
				"s k": domain.Array{domain.Boolean(true), domain.Boolean(false)},
			},
		},
		{
			name:     "multiline string",
			src:      "\"\"\"line1\nline2\"\"\"",
			expected: domain.MultilineString("line1\nline2"),
		},
		{
			name:     "escaped string",
			src:      `"say \"hi\"\n"`,
			expected: domain.String("say \"hi\"\n"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpression(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %#v, want %#v", got, tt.expected)
			}
		})
	}
}

// Глубина вложенных #{...} ограничена только рекурсией: разбор
// тернарного выражения и fallback не должен повторяться на каждом уровне.
func TestParse_DeepInterpolation(t *testing.T) {
	const depth = 200
	nested := func(inner string) string {
		return strings.Repeat("#{", depth) + inner + strings.Repeat("}", depth)
	}

	tests := []struct {
		name     string
		value    string
		expected domain.Value
	}{
		{
			name:     "variable",
			value:    nested("v"),
			expected: domain.VarInterpolation("v"),
		},
		{
			name:     "fallback",
			value:    nested(`v || "x"`),
			expected: domain.FallbackExpr{Primary: domain.VarInterpolation("v"), Fallback: domain.String("x")},
		},
		{
			name:  "ternary",
			value: "#{" + nested("flag") + ` ? "a" : "b"}`,
			expected: domain.ConditionalValue{
				Condition: domain.VarCondition("flag"),
				Then:      domain.String("a"),
				Else:      domain.String("b"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			p, err := Parse("pipeline p { x = " + tt.value + " }")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("parse took %v", elapsed)
			}
			if !reflect.DeepEqual(p.DataLiterals["x"], tt.expected) {
				t.Errorf("got %#v, want %#v", p.DataLiterals["x"], tt.expected)
			}
		})
	}
}

func TestParse_MetaTaskConfigs(t *testing.T) {
	src := `pipeline gen {
    m = meta_task(task = "Build a scraper", data_shape = "json")
    g = generate_tasks(meta_tasks = ["m"], custom_tasks = [extra], model = "gpt", style = "concise")
    f = generate_flow(tasks = ["m", "g"], constraints = ["fast"], description = "wire it", model = "m1", visualization = true)
    w = meta_task(task = 42)
    pos = meta_task("Positional description")
}`

	p, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsMeta() {
		t.Error("pipeline with meta tasks should be meta")
	}

	m := p.Tasks["m"].MetaTask
	if m == nil || m.Task != "Build a scraper" || m.DataShape != "json" {
		t.Errorf("unexpected meta task config: %+v", m)
	}

	g := p.Tasks["g"].GenerateTasks
	if g == nil {
		t.Fatal("generate_tasks config should be set")
	}
	if !reflect.DeepEqual(g.MetaTasks, []string{"m"}) || !reflect.DeepEqual(g.CustomTasks, []string{"extra"}) {
		t.Errorf("unexpected generate_tasks lists: %+v", g)
	}
	if g.Style == nil || *g.Style != "concise" {
		t.Errorf("expected style concise, got %v", g.Style)
	}

	f := p.Tasks["f"].GenerateFlow
	if f == nil {
		t.Fatal("generate_flow config should be set")
	}
	if f.Description != "wire it" || f.Model != "m1" {
		t.Errorf("unexpected generate_flow config: %+v", f)
	}
	if f.Visualization == nil || !*f.Visualization {
		t.Error("visualization should be true")
	}

	// Поле неподходящего типа остаётся пустым
	if w := p.Tasks["w"].MetaTask; w == nil || w.Task != "" {
		t.Errorf("wrong-typed field should default to empty, got %+v", w)
	}

	if pos := p.Tasks["pos"].MetaTask; pos.Task != "Positional description" {
		t.Errorf("expected positional description, got %q", pos.Task)
	}
}

func TestParse_ImplicitFlow(t *testing.T) {
	p, err := Parse(`pipeline p {
    b = set_var(var = "x", val = 1)
    a = set_var(var = "y", val = 2)
}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Flow != nil {
		t.Fatalf("flow should be nil when not declared")
	}

	expected := domain.Sequential{Items: []domain.FlowItem{domain.TaskRef("b"), domain.TaskRef("a")}}
	if !reflect.DeepEqual(p.EffectiveFlow(), expected) {
		t.Errorf("implicit flow should follow declaration order, got %#v", p.EffectiveFlow())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		expectErr error
		contains  string
	}{
		{
			name:      "unterminated block",
			src:       "pipeline x {",
			expectErr: ErrSyntax,
		},
		{
			name:      "missing header",
			src:       "x = cmd()",
			expectErr: ErrSyntax,
			contains:  `"pipeline"`,
		},
		{
			name:      "unterminated string",
			src:       `pipeline x { a = "oops }`,
			expectErr: ErrSyntax,
		},
		{
			name:      "unknown character",
			src:       `pipeline x { a = @ }`,
			expectErr: ErrSyntax,
		},
		{
			name:      "empty parallel",
			src:       `pipeline x { flow: [] }`,
			expectErr: ErrSyntax,
		},
		{
			name:      "unknown task type",
			src:       `pipeline x { t = shell(command = "ls") }`,
			expectErr: ErrInvalidTaskType,
			contains:  "shell",
		},
		{
			name:      "invalid number",
			src:       `pipeline x { n = 1.2.3 }`,
			expectErr: ErrInvalidValue,
			contains:  "number",
		},
		{
			name:      "number out of range",
			src:       `pipeline x { n = 1e999 }`,
			expectErr: ErrInvalidValue,
		},
		{
			name:      "duplicate task",
			src:       `pipeline x { t = cmd(command = "a") t = cmd(command = "b") }`,
			expectErr: ErrInvalidValue,
			contains:  "duplicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tt.expectErr) {
				t.Errorf("expected %v, got %v", tt.expectErr, err)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q should contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("pipeline x {\n  t = = 1\n}")

	var pErr *ParseError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ParseError, got %T (%v)", err, err)
	}
	if pErr.Pos.Line != 2 || pErr.Pos.Column != 7 {
		t.Errorf("expected position 2:7, got %s", pErr.Pos)
	}
	if pErr.Rule != RuleValue {
		t.Errorf("expected rule %s, got %s", RuleValue, pErr.Rule)
	}
}

func TestGrammar_Tree(t *testing.T) {
	tree, err := Grammar("pipeline p { flow: a > b }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `file[pipeline[identifier("p") flow_definition[flow_expr[identifier("a") identifier("b")]]]]`
	if tree.String() != expected {
		t.Errorf("unexpected tree:\n got: %s\nwant: %s", tree.String(), expected)
	}
}

func TestBuild_MissingField(t *testing.T) {
	tests := []struct {
		name string
		root *Node
	}{
		{name: "nil root", root: nil},
		{name: "file without pipeline", root: &Node{Rule: RuleFile}},
		{name: "pipeline without name", root: &Node{Rule: RulePipeline}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.root)
			if !errors.Is(err, ErrMissingField) {
				t.Errorf("expected ErrMissingField, got %v", err)
			}
		})
	}
}

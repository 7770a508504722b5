package dsl

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shaiso/piper/internal/domain"
)

// Parse компилирует текст pipeline в AST.
func Parse(src string) (*domain.Pipeline, error) {
	tree, err := Grammar(src)
	if err != nil {
		return nil, err
	}
	return Build(tree)
}

// ParseFile читает и компилирует файл pipeline.
func ParseFile(path string) (*domain.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline %s: %w", path, err)
	}
	return Parse(string(data))
}

// ParseExpression компилирует содержимое одного #{...} в значение.
func ParseExpression(src string) (domain.Value, error) {
	tree, err := GrammarExpression(src)
	if err != nil {
		return nil, err
	}
	return buildValue(tree)
}

// Build строит AST из дерева разбора.
// Принимает корень RuleFile или узел RulePipeline.
func Build(root *Node) (*domain.Pipeline, error) {
	if root == nil {
		return nil, NewMissingField("pipeline")
	}
	node := root
	if root.Rule == RuleFile {
		node = root.Child(RulePipeline)
		if node == nil {
			return nil, NewMissingField("pipeline")
		}
	}
	if node.Rule != RulePipeline {
		return nil, NewInvalidValue("pipeline", fmt.Sprintf("unexpected rule %s", node.Rule))
	}
	return buildPipeline(node)
}

func buildPipeline(node *Node) (*domain.Pipeline, error) {
	name := node.Child(RuleIdentifier)
	if name == nil {
		return nil, NewMissingField("pipeline_name")
	}
	p := domain.NewPipeline(name.Text)

	for _, child := range node.Children {
		switch child.Rule {
		case RuleIdentifier:
			// имя pipeline, уже обработано
		case RuleParameters:
			params, err := buildParameters(child)
			if err != nil {
				return nil, err
			}
			p.Parameters = params

		case RuleMetadata:
			for _, pair := range child.Children {
				key, val, err := buildPair(pair)
				if err != nil {
					return nil, err
				}
				p.Metadata[key] = val
			}

		case RuleDataLiteral:
			if len(child.Children) != 2 {
				return nil, NewMissingField("data_literal")
			}
			val, err := buildValue(child.Children[1])
			if err != nil {
				return nil, err
			}
			p.SetData(child.Children[0].Text, val)

		case RuleTaskDefinition:
			taskName, task, err := buildTaskDefinition(child)
			if err != nil {
				return nil, err
			}
			if !p.AddTask(taskName, task) {
				return nil, NewInvalidValue("task_definition", fmt.Sprintf("duplicate task name %q", taskName))
			}

		case RuleFlowDefinition:
			if len(child.Children) != 1 {
				return nil, NewMissingField("flow_expr")
			}
			flow, err := buildFlow(child.Children[0])
			if err != nil {
				return nil, err
			}
			p.Flow = flow

		default:
			return nil, NewInvalidValue("pipeline", fmt.Sprintf("unexpected rule %s", child.Rule))
		}
	}

	return p, nil
}

func buildParameters(node *Node) ([]domain.Parameter, error) {
	params := make([]domain.Parameter, 0, len(node.Children))
	for _, child := range node.Children {
		name := child.Child(RuleIdentifier)
		if name == nil {
			return nil, NewMissingField("parameter_name")
		}
		param := domain.Parameter{Name: name.Text}
		if len(child.Children) > 1 {
			val, err := buildValue(child.Children[1])
			if err != nil {
				return nil, err
			}
			param.Default = val
		}
		params = append(params, param)
	}
	return params, nil
}

func buildPair(node *Node) (string, domain.Value, error) {
	if node.Rule != RulePair || len(node.Children) != 2 {
		return "", nil, NewMissingField("pair")
	}
	val, err := buildValue(node.Children[1])
	if err != nil {
		return "", nil, err
	}
	return node.Children[0].Text, val, nil
}

func buildTaskDefinition(node *Node) (string, *domain.Task, error) {
	if len(node.Children) != 2 {
		return "", nil, NewMissingField("task_definition")
	}
	name := node.Children[0].Text
	body := node.Children[1]

	switch body.Rule {
	case RuleInlineCommand:
		task, err := buildInlineCommand(body)
		return name, task, err
	case RuleTaskCall:
		task, err := buildTaskCall(body)
		return name, task, err
	default:
		return "", nil, NewInvalidValue("task_definition", fmt.Sprintf("unexpected rule %s", body.Rule))
	}
}

// buildInlineCommand разворачивает $"..." -> out в cmd(command="...", output="out").
func buildInlineCommand(node *Node) (*domain.Task, error) {
	if len(node.Children) == 0 {
		return nil, NewMissingField("command")
	}
	cmd, err := buildValue(node.Children[0])
	if err != nil {
		return nil, err
	}
	task := &domain.Task{
		Type:           domain.TaskTypeCmd,
		NamedArguments: make(map[string]domain.Value),
	}
	task.Arguments = append(task.Arguments, domain.Argument{Name: "command", Value: cmd})
	task.NamedArguments["command"] = cmd

	if out := node.Child(RuleIdentifier); out != nil {
		val := domain.String(out.Text)
		task.Arguments = append(task.Arguments, domain.Argument{Name: domain.OutputKey, Value: val})
		task.NamedArguments[domain.OutputKey] = val
	}
	return task, nil
}

func buildTaskCall(node *Node) (*domain.Task, error) {
	typeNode := node.Child(RuleIdentifier)
	if typeNode == nil {
		return nil, NewMissingField("task_type")
	}
	taskType, ok := domain.ParseTaskType(typeNode.Text)
	if !ok {
		return nil, NewInvalidTaskType(typeNode.Text)
	}

	args, err := buildArguments(node.Children[1:])
	if err != nil {
		return nil, err
	}

	task := &domain.Task{
		Type:           taskType,
		Arguments:      args,
		NamedArguments: make(map[string]domain.Value),
	}
	for _, arg := range args {
		if arg.Name != "" {
			task.NamedArguments[arg.Name] = arg.Value
		}
	}

	switch taskType {
	case domain.TaskTypeMetaTask:
		task.MetaTask = metaTaskConfig(task)
	case domain.TaskTypeGenerateTasks:
		task.GenerateTasks = generateTasksConfig(task)
	case domain.TaskTypeGenerateFlow:
		task.GenerateFlow = generateFlowConfig(task)
	}

	return task, nil
}

func buildArguments(nodes []*Node) ([]domain.Argument, error) {
	args := make([]domain.Argument, 0, len(nodes))
	for _, n := range nodes {
		if n.Rule != RuleArgument || len(n.Children) == 0 {
			return nil, NewMissingField("argument")
		}
		arg := domain.Argument{}
		valNode := n.Children[0]
		if len(n.Children) == 2 {
			arg.Name = n.Children[0].Text
			valNode = n.Children[1]
		}
		val, err := buildValue(valNode)
		if err != nil {
			return nil, err
		}
		arg.Value = val
		args = append(args, arg)
	}
	return args, nil
}

func buildFlow(node *Node) (domain.Flow, error) {
	switch node.Rule {
	case RuleFlowExpr:
		if len(node.Children) == 1 {
			item, err := buildFlowItem(node.Children[0])
			if err != nil {
				return nil, err
			}
			if !item.IsTask() {
				return item.Flow, nil
			}
			return domain.Sequential{Items: []domain.FlowItem{item}}, nil
		}
		items, err := buildFlowItems(node.Children)
		if err != nil {
			return nil, err
		}
		return domain.Sequential{Items: items}, nil

	case RuleParallelFlow:
		items, err := buildFlowItems(node.Children)
		if err != nil {
			return nil, err
		}
		return domain.Parallel{Items: items}, nil

	case RuleConditionalFlow:
		if len(node.Children) < 2 {
			return nil, NewMissingField("conditional_flow")
		}
		cond, err := buildCondition(node.Children[0])
		if err != nil {
			return nil, err
		}
		then, err := buildFlowItem(node.Children[1])
		if err != nil {
			return nil, err
		}
		flow := domain.Conditional{Condition: cond, Then: &then}
		if len(node.Children) > 2 {
			otherwise, err := buildFlowItem(node.Children[2])
			if err != nil {
				return nil, err
			}
			flow.Else = &otherwise
		}
		return flow, nil

	default:
		return nil, NewInvalidValue("flow", fmt.Sprintf("unexpected rule %s", node.Rule))
	}
}

func buildFlowItems(nodes []*Node) ([]domain.FlowItem, error) {
	items := make([]domain.FlowItem, 0, len(nodes))
	for _, n := range nodes {
		item, err := buildFlowItem(n)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// buildFlowItem строит элемент flow. Вложенное выражение из одного
// элемента разворачивается в сам элемент.
func buildFlowItem(node *Node) (domain.FlowItem, error) {
	if node.Rule == RuleIdentifier {
		return domain.TaskRef(node.Text), nil
	}
	if node.Rule == RuleFlowExpr && len(node.Children) == 1 {
		return buildFlowItem(node.Children[0])
	}
	flow, err := buildFlow(node)
	if err != nil {
		return domain.FlowItem{}, err
	}
	return domain.SubFlow(flow), nil
}

// buildCondition сворачивает цепочку условий слева направо без приоритетов.
func buildCondition(node *Node) (domain.Condition, error) {
	switch node.Rule {
	case RuleCondition:
		if len(node.Children) == 0 || len(node.Children)%2 == 0 {
			return nil, NewMissingField("condition")
		}
		result, err := buildCondition(node.Children[0])
		if err != nil {
			return nil, err
		}
		for i := 1; i+1 < len(node.Children); i += 2 {
			right, err := buildCondition(node.Children[i+1])
			if err != nil {
				return nil, err
			}
			result = domain.LogicalOperation{
				Left:     result,
				Operator: domain.LogicalOperator(node.Children[i].Text),
				Right:    right,
			}
		}
		return result, nil

	case RuleComparison:
		if len(node.Children) != 3 {
			return nil, NewMissingField("comparison")
		}
		left, err := buildValue(node.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := buildValue(node.Children[2])
		if err != nil {
			return nil, err
		}
		return domain.Comparison{
			Left:     left,
			Operator: domain.ComparisonOperator(node.Children[1].Text),
			Right:    right,
		}, nil

	case RuleBoolean:
		return domain.BoolCondition(node.Text == "true"), nil

	case RuleVarInterpolation:
		return domain.VarCondition(node.Text), nil

	default:
		return nil, NewInvalidValue("condition", fmt.Sprintf("unexpected rule %s", node.Rule))
	}
}

func buildValue(node *Node) (domain.Value, error) {
	switch node.Rule {
	case RuleString:
		return domain.String(node.Text), nil

	case RuleMultilineString:
		return domain.MultilineString(node.Text), nil

	case RuleNumber:
		f, err := strconv.ParseFloat(node.Text, 64)
		if err != nil {
			return nil, NewInvalidValue("number", fmt.Sprintf("%q is not a number", node.Text))
		}
		return domain.Number(f), nil

	case RuleBoolean:
		return domain.Boolean(node.Text == "true"), nil

	case RuleObject:
		obj := make(domain.Object, len(node.Children))
		for _, pair := range node.Children {
			key, val, err := buildPair(pair)
			if err != nil {
				return nil, err
			}
			obj[key] = val
		}
		return obj, nil

	case RuleArray:
		arr := make(domain.Array, 0, len(node.Children))
		for _, child := range node.Children {
			val, err := buildValue(child)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		return arr, nil

	case RuleVarInterpolation, RuleIdentifier:
		return domain.VarInterpolation(node.Text), nil

	case RulePropertyAccess:
		if len(node.Children) < 2 {
			return nil, NewMissingField("property_access")
		}
		access := domain.PropertyAccess{Base: node.Children[0].Text}
		for _, field := range node.Children[1:] {
			access.Path = append(access.Path, field.Text)
		}
		return access, nil

	case RuleFallbackExpr:
		return buildFallback(node.Children)

	case RuleFunctionCall:
		name := node.Child(RuleIdentifier)
		if name == nil {
			return nil, NewMissingField("function_name")
		}
		args, err := buildArguments(node.Children[1:])
		if err != nil {
			return nil, err
		}
		return domain.FunctionCall{Name: name.Text, Arguments: args}, nil

	case RuleConditionalValue:
		if len(node.Children) != 3 {
			return nil, NewMissingField("conditional_value")
		}
		cond, err := buildCondition(node.Children[0])
		if err != nil {
			return nil, err
		}
		then, err := buildValue(node.Children[1])
		if err != nil {
			return nil, err
		}
		otherwise, err := buildValue(node.Children[2])
		if err != nil {
			return nil, err
		}
		return domain.ConditionalValue{Condition: cond, Then: then, Else: otherwise}, nil

	default:
		return nil, NewInvalidValue("value", fmt.Sprintf("unexpected rule %s", node.Rule))
	}
}

// buildFallback строит a || b || c как a || (b || c).
func buildFallback(nodes []*Node) (domain.Value, error) {
	if len(nodes) == 0 {
		return nil, NewMissingField("fallback_expr")
	}
	primary, err := buildValue(nodes[0])
	if err != nil {
		return nil, err
	}
	if len(nodes) == 1 {
		return primary, nil
	}
	fallback, err := buildFallback(nodes[1:])
	if err != nil {
		return nil, err
	}
	return domain.FallbackExpr{Primary: primary, Fallback: fallback}, nil
}

// Извлечение конфигураций задач генерации.
// Отсутствующие и неподходящие по типу поля остаются пустыми.

func metaTaskConfig(t *domain.Task) *domain.MetaTaskConfig {
	cfg := &domain.MetaTaskConfig{
		Task:      stringArg(t, "task"),
		DataShape: stringArg(t, "data_shape"),
	}
	if cfg.Task == "" {
		for _, arg := range t.Arguments {
			if arg.Name == "" {
				cfg.Task = textOf(arg.Value)
				break
			}
		}
	}
	return cfg
}

func generateTasksConfig(t *domain.Task) *domain.GenerateTasksConfig {
	cfg := &domain.GenerateTasksConfig{
		MetaTasks:   stringsArg(t, "meta_tasks"),
		CustomTasks: stringsArg(t, "custom_tasks"),
		Model:       stringArg(t, "model"),
	}
	if _, ok := t.Arg("style"); ok {
		style := stringArg(t, "style")
		cfg.Style = &style
	}
	return cfg
}

func generateFlowConfig(t *domain.Task) *domain.GenerateFlowConfig {
	cfg := &domain.GenerateFlowConfig{
		Tasks:       stringsArg(t, "tasks"),
		Constraints: stringsArg(t, "constraints"),
		Description: stringArg(t, "description"),
		Model:       stringArg(t, "model"),
	}
	if b, ok := t.NamedArguments["visualization"].(domain.Boolean); ok {
		v := bool(b)
		cfg.Visualization = &v
	}
	return cfg
}

func stringArg(t *domain.Task, name string) string {
	return textOf(t.NamedArguments[name])
}

func stringsArg(t *domain.Task, name string) []string {
	arr, ok := t.NamedArguments[name].(domain.Array)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s := textOf(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// textOf возвращает текст строкового значения или имя переменной.
func textOf(v domain.Value) string {
	switch val := v.(type) {
	case domain.String:
		return string(val)
	case domain.MultilineString:
		return string(val)
	case domain.VarInterpolation:
		return string(val)
	default:
		return ""
	}
}

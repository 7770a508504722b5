package dsl

import (
	"fmt"
	"strings"
)

// Rule — имя правила грамматики, которым помечен узел дерева разбора.
type Rule string

// Правила грамматики.
const (
	RuleFile             Rule = "file"
	RulePipeline         Rule = "pipeline"
	RuleParameters       Rule = "parameters"
	RuleParameter        Rule = "parameter"
	RuleMetadata         Rule = "metadata"
	RulePair             Rule = "pair"
	RuleDataLiteral      Rule = "data_literal"
	RuleTaskDefinition   Rule = "task_definition"
	RuleTaskCall         Rule = "task_call"
	RuleInlineCommand    Rule = "inline_command"
	RuleArgument         Rule = "argument"
	RuleFlowDefinition   Rule = "flow_definition"
	RuleFlowExpr         Rule = "flow_expr"
	RuleParallelFlow     Rule = "parallel_flow"
	RuleConditionalFlow  Rule = "conditional_flow"
	RuleCondition        Rule = "condition"
	RuleComparison       Rule = "comparison"
	RuleComparisonOp     Rule = "comparison_operator"
	RuleLogicalOp        Rule = "logical_operator"
	RuleIdentifier       Rule = "identifier"
	RuleString           Rule = "string"
	RuleMultilineString  Rule = "multiline_string"
	RuleNumber           Rule = "number"
	RuleBoolean          Rule = "boolean"
	RuleObject           Rule = "object"
	RuleArray            Rule = "array"
	RuleVarInterpolation Rule = "var_interpolation"
	RulePropertyAccess   Rule = "property_access"
	RuleFallbackExpr     Rule = "fallback_expr"
	RuleFunctionCall     Rule = "function_call"
	RuleConditionalValue Rule = "conditional_value"
	RuleExpression       Rule = "expression"
	RuleValue            Rule = "value"
)

// Node — узел дерева разбора.
//
// Дерево не типизировано: структура определяется правилом.
// Text заполнен у терминальных узлов (идентификаторы, литералы, операторы).
type Node struct {
	Rule     Rule     `json:"rule"`
	Text     string   `json:"text,omitempty"`
	Pos      Position `json:"pos"`
	Children []*Node  `json:"children,omitempty"`
}

// Child возвращает первый дочерний узел с указанным правилом.
func (n *Node) Child(rule Rule) *Node {
	for _, c := range n.Children {
		if c.Rule == rule {
			return c
		}
	}
	return nil
}

// String возвращает компактное представление дерева (для отладки и тестов).
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	b.WriteString(string(n.Rule))
	if n.Text != "" {
		fmt.Fprintf(b, "(%q)", n.Text)
	}
	if len(n.Children) > 0 {
		b.WriteString("[")
		for i, c := range n.Children {
			if i > 0 {
				b.WriteString(" ")
			}
			c.write(b)
		}
		b.WriteString("]")
	}
}

// Grammar разбирает исходный текст pipeline в дерево разбора.
// Корень дерева имеет правило RuleFile.
func Grammar(src string) (*Node, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	return p.parseFile()
}

// parser — рекурсивный спуск по списку лексем.
//
// Возвраты (backtracking) используются в двух местах:
// условный flow против группировки в скобках и тернарное выражение
// против fallback внутри #{...}. Обе альтернативы начинаются со
// значения, поэтому результат parseValue запоминается по позиции:
// иначе каждый уровень вложенных #{...} удваивал бы работу.
type parser struct {
	toks   []token
	pos    int
	values map[int]parsedValue
}

// parsedValue — результат parseValue, начатого с позиции лексемы.
type parsedValue struct {
	node *Node
	err  error
	end  int
}

func newParser(src string) (*parser, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, values: make(map[int]parsedValue)}, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(kind tokenKind) bool {
	if p.peek().kind == kind {
		p.next()
		return true
	}
	return false
}

func (p *parser) isKeyword(word string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && tok.text == word
}

func (p *parser) errorf(rule Rule, expected ...string) *ParseError {
	tok := p.peek()
	return &ParseError{
		Pos:      tok.pos,
		Rule:     rule,
		Expected: expected,
		Found:    tok.describe(),
	}
}

func (p *parser) expect(kind tokenKind, rule Rule) (token, error) {
	if p.peek().kind != kind {
		return token{}, p.errorf(rule, kind.String())
	}
	return p.next(), nil
}

func (p *parser) expectKeyword(word string, rule Rule) (token, error) {
	if !p.isKeyword(word) {
		return token{}, p.errorf(rule, fmt.Sprintf("%q", word))
	}
	return p.next(), nil
}

func leaf(rule Rule, tok token) *Node {
	return &Node{Rule: rule, Text: tok.text, Pos: tok.pos}
}

// file = pipeline EOF
func (p *parser) parseFile() (*Node, error) {
	start := p.peek().pos
	pipeline, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokEOF, RuleFile); err != nil {
		return nil, err
	}
	return &Node{Rule: RuleFile, Pos: start, Children: []*Node{pipeline}}, nil
}

// pipeline = "pipeline" identifier parameters? "{" item* "}"
func (p *parser) parsePipeline() (*Node, error) {
	kw, err := p.expectKeyword("pipeline", RulePipeline)
	if err != nil {
		return nil, err
	}
	node := &Node{Rule: RulePipeline, Pos: kw.pos}

	name, err := p.expect(tokIdent, RulePipeline)
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, leaf(RuleIdentifier, name))

	if p.peek().kind == tokLParen {
		params, err := p.parseParameters()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, params)
	}

	if _, err := p.expect(tokLBrace, RulePipeline); err != nil {
		return nil, err
	}

	for p.peek().kind != tokRBrace {
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, item)
	}
	p.next()

	return node, nil
}

// parameters = "(" (parameter ("," parameter)* ","?)? ")"
func (p *parser) parseParameters() (*Node, error) {
	open := p.next()
	node := &Node{Rule: RuleParameters, Pos: open.pos}

	for p.peek().kind != tokRParen {
		name, err := p.expect(tokIdent, RuleParameter)
		if err != nil {
			return nil, err
		}
		param := &Node{Rule: RuleParameter, Pos: name.pos, Children: []*Node{leaf(RuleIdentifier, name)}}
		if p.accept(tokAssign) {
			val, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			param.Children = append(param.Children, val)
		}
		node.Children = append(node.Children, param)

		if !p.accept(tokComma) {
			break
		}
	}

	if _, err := p.expect(tokRParen, RuleParameters); err != nil {
		return nil, err
	}
	return node, nil
}

// item = metadata | flow_definition | task_definition | data_literal
func (p *parser) parseItem() (*Node, error) {
	tok := p.peek()
	if tok.kind != tokIdent {
		return nil, p.errorf(RulePipeline, `"meta"`, `"flow"`, "identifier", "'}'")
	}

	switch {
	case tok.text == "meta" && p.peekAt(1).kind == tokLBrace:
		return p.parseMetadata()
	case tok.text == "flow" && p.peekAt(1).kind == tokColon:
		return p.parseFlowDefinition()
	}

	if p.peekAt(1).kind != tokAssign {
		p.next()
		return nil, p.errorf(RulePipeline, "'='")
	}

	rhs := p.peekAt(2)
	switch {
	case rhs.kind == tokDollar:
		return p.parseTaskDefinition()
	case rhs.kind == tokIdent && p.peekAt(3).kind == tokLParen:
		return p.parseTaskDefinition()
	default:
		return p.parseDataLiteral()
	}
}

// metadata = "meta" "{" (pair ","?)* "}"
func (p *parser) parseMetadata() (*Node, error) {
	kw := p.next()
	p.next() // {
	node := &Node{Rule: RuleMetadata, Pos: kw.pos}
	pairs, err := p.parsePairs(RuleMetadata)
	if err != nil {
		return nil, err
	}
	node.Children = pairs
	return node, nil
}

// parsePairs разбирает пары key: value до закрывающей скобки.
// Запятые между парами необязательны.
func (p *parser) parsePairs(rule Rule) ([]*Node, error) {
	var pairs []*Node
	for p.peek().kind != tokRBrace {
		key := p.peek()
		if key.kind != tokIdent && key.kind != tokString {
			return nil, p.errorf(rule, "identifier", "string", "'}'")
		}
		p.next()
		if _, err := p.expect(tokColon, RulePair); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		keyRule := RuleIdentifier
		if key.kind == tokString {
			keyRule = RuleString
		}
		pairs = append(pairs, &Node{Rule: RulePair, Pos: key.pos, Children: []*Node{leaf(keyRule, key), val}})
		p.accept(tokComma)
	}
	p.next()
	return pairs, nil
}

// data_literal = identifier "=" value
func (p *parser) parseDataLiteral() (*Node, error) {
	name := p.next()
	p.next() // =
	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &Node{Rule: RuleDataLiteral, Pos: name.pos, Children: []*Node{leaf(RuleIdentifier, name), val}}, nil
}

// task_definition = identifier "=" (task_call | inline_command)
func (p *parser) parseTaskDefinition() (*Node, error) {
	name := p.next()
	p.next() // =
	node := &Node{Rule: RuleTaskDefinition, Pos: name.pos, Children: []*Node{leaf(RuleIdentifier, name)}}

	var body *Node
	var err error
	if p.peek().kind == tokDollar {
		body, err = p.parseInlineCommand()
	} else {
		body, err = p.parseCall(RuleTaskCall)
	}
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, body)
	return node, nil
}

// inline_command = "$" (string | multiline_string) ("->" identifier)?
func (p *parser) parseInlineCommand() (*Node, error) {
	dollar := p.next()
	node := &Node{Rule: RuleInlineCommand, Pos: dollar.pos}

	cmd := p.peek()
	switch cmd.kind {
	case tokString:
		node.Children = append(node.Children, leaf(RuleString, p.next()))
	case tokMultiline:
		node.Children = append(node.Children, leaf(RuleMultilineString, p.next()))
	default:
		return nil, p.errorf(RuleInlineCommand, "string")
	}

	if p.accept(tokArrow) {
		out, err := p.expect(tokIdent, RuleInlineCommand)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, leaf(RuleIdentifier, out))
	}
	return node, nil
}

// call = identifier "(" (argument ("," argument)* ","?)? ")"
// argument = (identifier "=")? value
func (p *parser) parseCall(rule Rule) (*Node, error) {
	name, err := p.expect(tokIdent, rule)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLParen, rule); err != nil {
		return nil, err
	}
	node := &Node{Rule: rule, Pos: name.pos, Children: []*Node{leaf(RuleIdentifier, name)}}

	for p.peek().kind != tokRParen {
		arg := &Node{Rule: RuleArgument, Pos: p.peek().pos}
		if p.peek().kind == tokIdent && p.peekAt(1).kind == tokAssign {
			arg.Children = append(arg.Children, leaf(RuleIdentifier, p.next()))
			p.next() // =
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		arg.Children = append(arg.Children, val)
		node.Children = append(node.Children, arg)

		if !p.accept(tokComma) {
			break
		}
	}

	if _, err := p.expect(tokRParen, rule); err != nil {
		return nil, err
	}
	return node, nil
}

// flow_definition = "flow" ":" flow_expr
func (p *parser) parseFlowDefinition() (*Node, error) {
	kw := p.next()
	p.next() // :
	expr, err := p.parseFlowExpr()
	if err != nil {
		return nil, err
	}
	return &Node{Rule: RuleFlowDefinition, Pos: kw.pos, Children: []*Node{expr}}, nil
}

// flow_expr = flow_item (">" flow_item)*
func (p *parser) parseFlowExpr() (*Node, error) {
	node := &Node{Rule: RuleFlowExpr, Pos: p.peek().pos}
	for {
		item, err := p.parseFlowItem()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, item)
		if !p.accept(tokGT) {
			return node, nil
		}
	}
}

// flow_item = identifier | parallel_flow | conditional_flow | "(" flow_expr ")"
func (p *parser) parseFlowItem() (*Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokIdent:
		return leaf(RuleIdentifier, p.next()), nil
	case tokLBracket:
		return p.parseParallelFlow()
	case tokLParen:
		saved := p.pos
		if node, err := p.parseConditionalFlow(); err == nil {
			return node, nil
		}
		p.pos = saved
		p.next() // (
		expr, err := p.parseFlowExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, RuleFlowExpr); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, p.errorf(RuleFlowExpr, "task name", "'['", "'('")
	}
}

// parallel_flow = "[" flow_expr ("," flow_expr)* ","? "]"
func (p *parser) parseParallelFlow() (*Node, error) {
	open := p.next()
	node := &Node{Rule: RuleParallelFlow, Pos: open.pos}
	for p.peek().kind != tokRBracket {
		expr, err := p.parseFlowExpr()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, expr)
		if !p.accept(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRBracket, RuleParallelFlow); err != nil {
		return nil, err
	}
	if len(node.Children) == 0 {
		return nil, &ParseError{Pos: open.pos, Rule: RuleParallelFlow, Expected: []string{"flow expression"}, Found: "']'"}
	}
	return node, nil
}

// conditional_flow = "(" condition "?" flow_expr (":" flow_expr)? ")"
func (p *parser) parseConditionalFlow() (*Node, error) {
	open := p.next()
	node := &Node{Rule: RuleConditionalFlow, Pos: open.pos}

	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokQuestion, RuleConditionalFlow); err != nil {
		return nil, err
	}
	then, err := p.parseFlowExpr()
	if err != nil {
		return nil, err
	}
	node.Children = append(node.Children, cond, then)

	if p.accept(tokColon) {
		otherwise, err := p.parseFlowExpr()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, otherwise)
	}

	if _, err := p.expect(tokRParen, RuleConditionalFlow); err != nil {
		return nil, err
	}
	return node, nil
}

// condition = condition_term (("&&" | "||") condition_term)*
func (p *parser) parseCondition() (*Node, error) {
	node := &Node{Rule: RuleCondition, Pos: p.peek().pos}
	for {
		term, err := p.parseConditionTerm()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, term)

		op := p.peek()
		if op.kind != tokAnd && op.kind != tokOr {
			return node, nil
		}
		node.Children = append(node.Children, leaf(RuleLogicalOp, p.next()))
	}
}

var comparisonTokens = map[tokenKind]bool{
	tokEQ: true, tokNE: true, tokGT: true, tokLT: true, tokGE: true, tokLE: true,
}

// condition_term = "(" condition ")" | value comparison_operator value
//
//	| boolean | var_interpolation
func (p *parser) parseConditionTerm() (*Node, error) {
	if p.peek().kind == tokLParen {
		p.next()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, RuleCondition); err != nil {
			return nil, err
		}
		return cond, nil
	}

	start := p.peek()
	left, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	if op := p.peek(); comparisonTokens[op.kind] {
		p.next()
		right, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &Node{Rule: RuleComparison, Pos: start.pos, Children: []*Node{left, leaf(RuleComparisonOp, op), right}}, nil
	}

	switch left.Rule {
	case RuleBoolean, RuleVarInterpolation:
		return left, nil
	default:
		return nil, p.errorf(RuleCondition, "comparison operator")
	}
}

// value = "#{" expression "}" | object | array | string | multiline_string
//
//	| number | boolean | function_call | property_access | identifier
func (p *parser) parseValue() (*Node, error) {
	start := p.pos
	if v, ok := p.values[start]; ok {
		p.pos = v.end
		return v.node, v.err
	}
	node, err := p.scanValue()
	p.values[start] = parsedValue{node: node, err: err, end: p.pos}
	return node, err
}

func (p *parser) scanValue() (*Node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokInterpStart:
		p.next()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBrace, RuleVarInterpolation); err != nil {
			return nil, err
		}
		return expr, nil

	case tokLBrace:
		p.next()
		pairs, err := p.parsePairs(RuleObject)
		if err != nil {
			return nil, err
		}
		return &Node{Rule: RuleObject, Pos: tok.pos, Children: pairs}, nil

	case tokLBracket:
		return p.parseArray()

	case tokString:
		return leaf(RuleString, p.next()), nil

	case tokMultiline:
		return leaf(RuleMultilineString, p.next()), nil

	case tokNumber:
		return leaf(RuleNumber, p.next()), nil

	case tokIdent:
		if tok.text == "true" || tok.text == "false" {
			return leaf(RuleBoolean, p.next()), nil
		}
		if p.peekAt(1).kind == tokLParen {
			return p.parseCall(RuleFunctionCall)
		}
		if p.peekAt(1).kind == tokDot {
			return p.parsePropertyAccess()
		}
		return leaf(RuleVarInterpolation, p.next()), nil

	default:
		return nil, p.errorf(RuleValue, "value")
	}
}

// array = "[" (value ("," value)* ","?)? "]"
func (p *parser) parseArray() (*Node, error) {
	open := p.next()
	node := &Node{Rule: RuleArray, Pos: open.pos}
	for p.peek().kind != tokRBracket {
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, val)
		if !p.accept(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRBracket, RuleArray); err != nil {
		return nil, err
	}
	return node, nil
}

// property_access = identifier ("." identifier)+
func (p *parser) parsePropertyAccess() (*Node, error) {
	base := p.next()
	node := &Node{Rule: RulePropertyAccess, Pos: base.pos, Children: []*Node{leaf(RuleIdentifier, base)}}
	for p.accept(tokDot) {
		field, err := p.expect(tokIdent, RulePropertyAccess)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, leaf(RuleIdentifier, field))
	}
	return node, nil
}

// expression = condition "?" fallback ":" fallback | fallback
func (p *parser) parseExpression() (*Node, error) {
	saved := p.pos
	if node, err := p.parseTernary(); err == nil {
		return node, nil
	}
	p.pos = saved
	return p.parseFallback()
}

func (p *parser) parseTernary() (*Node, error) {
	start := p.peek()
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokQuestion, RuleConditionalValue); err != nil {
		return nil, err
	}
	then, err := p.parseFallback()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColon, RuleConditionalValue); err != nil {
		return nil, err
	}
	otherwise, err := p.parseFallback()
	if err != nil {
		return nil, err
	}
	return &Node{Rule: RuleConditionalValue, Pos: start.pos, Children: []*Node{cond, then, otherwise}}, nil
}

// fallback = value ("||" value)*
func (p *parser) parseFallback() (*Node, error) {
	start := p.peek()
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokOr {
		return first, nil
	}
	node := &Node{Rule: RuleFallbackExpr, Pos: start.pos, Children: []*Node{first}}
	for p.accept(tokOr) {
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, val)
	}
	return node, nil
}

// GrammarExpression разбирает содержимое одного #{...}.
func GrammarExpression(src string) (*Node, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokEOF, RuleExpression); err != nil {
		return nil, err
	}
	return expr, nil
}

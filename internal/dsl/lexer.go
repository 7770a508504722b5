package dsl

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenKind — вид лексемы.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokMultiline
	tokNumber
	tokLBrace      // {
	tokRBrace      // }
	tokLParen      // (
	tokRParen      // )
	tokLBracket    // [
	tokRBracket    // ]
	tokComma       // ,
	tokColon       // :
	tokAssign      // =
	tokDot         // .
	tokQuestion    // ?
	tokGT          // >
	tokLT          // <
	tokGE          // >=
	tokLE          // <=
	tokEQ          // ==
	tokNE          // !=
	tokAnd         // &&
	tokOr          // ||
	tokArrow       // ->
	tokDollar      // $
	tokInterpStart // #{
)

var tokenNames = map[tokenKind]string{
	tokEOF:         "end of input",
	tokIdent:       "identifier",
	tokString:      "string",
	tokMultiline:   "multiline string",
	tokNumber:      "number",
	tokLBrace:      "'{'",
	tokRBrace:      "'}'",
	tokLParen:      "'('",
	tokRParen:      "')'",
	tokLBracket:    "'['",
	tokRBracket:    "']'",
	tokComma:       "','",
	tokColon:       "':'",
	tokAssign:      "'='",
	tokDot:         "'.'",
	tokQuestion:    "'?'",
	tokGT:          "'>'",
	tokLT:          "'<'",
	tokGE:          "'>='",
	tokLE:          "'<='",
	tokEQ:          "'=='",
	tokNE:          "'!='",
	tokAnd:         "'&&'",
	tokOr:          "'||'",
	tokArrow:       "'->'",
	tokDollar:      "'$'",
	tokInterpStart: "'#{'",
}

func (k tokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

var doubleTokens = map[string]tokenKind{
	">=": tokGE,
	"<=": tokLE,
	"==": tokEQ,
	"!=": tokNE,
	"&&": tokAnd,
	"||": tokOr,
	"->": tokArrow,
	"#{": tokInterpStart,
}

var singleTokens = map[byte]tokenKind{
	'{': tokLBrace,
	'}': tokRBrace,
	'(': tokLParen,
	')': tokRParen,
	'[': tokLBracket,
	']': tokRBracket,
	',': tokComma,
	':': tokColon,
	'=': tokAssign,
	'.': tokDot,
	'?': tokQuestion,
	'>': tokGT,
	'<': tokLT,
	'$': tokDollar,
}

// token — лексема. Для строк Text содержит уже раскодированное значение.
type token struct {
	kind tokenKind
	text string
	pos  Position
}

// describe возвращает описание лексемы для сообщений об ошибках.
func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString, tokMultiline:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// lexer разбивает исходный текст на лексемы.
// Комментарии // и пробельные символы пропускаются.
type lexer struct {
	input string
	pos   int
	line  int
	col   int
}

// tokenize возвращает все лексемы текста, последней идёт tokEOF.
func tokenize(input string) ([]token, error) {
	l := &lexer{input: input, line: 1, col: 1}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) position() Position {
	return Position{Line: l.line, Column: l.col, Offset: l.pos}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

// advance сдвигает позицию на n байт с учётом переводов строк.
func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.input); {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		l.pos += size
		i += size
		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ';':
			l.advance(1)
		case c == '/' && l.peekByte(1) == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance(1)
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	start := l.position()

	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.input[l.pos]

	// Двухсимвольные операторы.
	if l.pos+1 < len(l.input) {
		two := l.input[l.pos : l.pos+2]
		if kind, ok := doubleTokens[two]; ok {
			l.advance(2)
			return token{kind: kind, text: two, pos: start}, nil
		}
	}

	if kind, ok := singleTokens[c]; ok {
		l.advance(1)
		return token{kind: kind, text: string(c), pos: start}, nil
	}

	switch {
	case strings.HasPrefix(l.input[l.pos:], `"""`):
		return l.lexMultiline(start)
	case c == '"':
		return l.lexString(start)
	case isDigit(c) || (c == '-' && isDigit(l.peekByte(1))):
		return l.lexNumber(start), nil
	case c == '_' || isLetter(c):
		return l.lexIdent(start), nil
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return token{}, &ParseError{
		Pos:      start,
		Rule:     "token",
		Expected: []string{"token"},
		Found:    fmt.Sprintf("%q", r),
	}
}

func (l *lexer) lexIdent(start Position) token {
	begin := l.pos
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c != '_' && !isLetter(c) && !isDigit(c) {
			break
		}
		l.advance(1)
	}
	return token{kind: tokIdent, text: l.input[begin:l.pos], pos: start}
}

// lexNumber принимает цифры, точки и экспоненту. Проверка формата
// выполняется при построении AST, чтобы ошибка была InvalidValue.
func (l *lexer) lexNumber(start Position) token {
	begin := l.pos
	if l.input[l.pos] == '-' {
		l.advance(1)
	}
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case isDigit(c) || c == '.' || c == '_':
			l.advance(1)
		case c == 'e' || c == 'E':
			l.advance(1)
			if next := l.peekByte(0); next == '+' || next == '-' {
				l.advance(1)
			}
		default:
			return token{kind: tokNumber, text: l.input[begin:l.pos], pos: start}
		}
	}
	return token{kind: tokNumber, text: l.input[begin:l.pos], pos: start}
}

func (l *lexer) lexString(start Position) (token, error) {
	l.advance(1) // открывающая кавычка
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch c {
		case '"':
			l.advance(1)
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case '\n':
			return token{}, &ParseError{Pos: l.position(), Rule: RuleString, Expected: []string{`'"'`}, Found: "end of line"}
		case '\\':
			esc := l.peekByte(1)
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\':
				b.WriteByte(esc)
			default:
				// Неизвестная escape-последовательность сохраняется как есть.
				b.WriteByte('\\')
				if esc != 0 {
					b.WriteByte(esc)
				}
			}
			l.advance(2)
		default:
			r, size := utf8.DecodeRuneInString(l.input[l.pos:])
			b.WriteRune(r)
			l.advance(size)
		}
	}
	return token{}, &ParseError{Pos: l.position(), Rule: RuleString, Expected: []string{`'"'`}, Found: "end of input"}
}

func (l *lexer) lexMultiline(start Position) (token, error) {
	l.advance(3)
	end := strings.Index(l.input[l.pos:], `"""`)
	if end < 0 {
		l.advance(len(l.input) - l.pos)
		return token{}, &ParseError{Pos: l.position(), Rule: RuleMultilineString, Expected: []string{`'"""'`}, Found: "end of input"}
	}
	text := l.input[l.pos : l.pos+end]
	l.advance(end + 3)
	return token{kind: tokMultiline, text: text, pos: start}, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return c < utf8.RuneSelf && unicode.IsLetter(rune(c))
}

// isIdentifier проверяет, что строку можно записать без кавычек.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || isLetter(c) || (i > 0 && isDigit(c)) {
			continue
		}
		return false
	}
	return true
}

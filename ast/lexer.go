package ast

import (
	"strconv"
	"strings"
	"text/scanner"
)

// syntaxError is panicked by the lexer/parser and recovered at the top of
// Parse, mirroring the teacher corpus's panic-driven recursive descent
// (internal/lexer.go's catchSyntaxError in the validation-heavy example
// repo) rather than threading an error return through every production.
type syntaxError string

type lexer struct {
	scan *scanner.Scanner
	next rune
}

func newLexer(source string) *lexer {
	scan := &scanner.Scanner{
		Mode: scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings,
	}
	scan.Init(strings.NewReader(source))
	scan.Error = func(*scanner.Scanner, string) {}
	l := &lexer{scan: scan}
	l.skipWhitespace()
	return l
}

func (l *lexer) location() Location {
	return Location{Line: l.scan.Line, Column: l.scan.Column}
}

func (l *lexer) syntaxError(msg string) {
	panic(syntaxError(msg))
}

func (l *lexer) peek() rune {
	return l.next
}

func (l *lexer) text() string {
	return l.scan.TokenText()
}

// skipWhitespace advances past whitespace, commas, and `#` comments, which
// GraphQL treats as insignificant exactly like whitespace.
func (l *lexer) skipWhitespace() {
	for {
		l.next = l.scan.Scan()
		if l.next == ',' {
			continue
		}
		if l.next == '#' {
			for {
				r := l.scan.Next()
				if r == '\r' || r == '\n' || r == scanner.EOF {
					break
				}
			}
			continue
		}
		break
	}
}

func (l *lexer) consume(expected rune) {
	if l.next != expected {
		l.syntaxError("expected " + scanner.TokenString(expected) + ", found " + l.text())
	}
	l.skipWhitespace()
}

func (l *lexer) consumeName(expected string) {
	if l.next != scanner.Ident || l.text() != expected {
		l.syntaxError("expected \"" + expected + "\", found " + l.text())
	}
	l.skipWhitespace()
}

// peekKeyword reports whether the next token is the identifier `kw`
// without consuming it.
func (l *lexer) peekKeyword(kw string) bool {
	return l.next == scanner.Ident && l.text() == kw
}

func (l *lexer) consumeIdent() string {
	if l.next != scanner.Ident {
		l.syntaxError("expected name, found " + l.text())
	}
	name := l.text()
	l.skipWhitespace()
	return name
}

// parseValue parses a single GraphQL input value: variable, int, float,
// string, boolean, null, enum, list, or object.
func parseValue(l *lexer, constOnly bool) *Value {
	loc := l.location()
	switch {
	case l.next == '$':
		if constOnly {
			l.syntaxError("variable not allowed in constant context")
		}
		l.skipWhitespace()
		name := l.consumeIdent()
		return &Value{Kind: VariableValue, Variable: name, Loc: loc}

	case l.next == '-' || l.next == scanner.Int:
		text := l.text()
		if l.next == '-' {
			l.next = l.scan.Scan()
			text += l.text()
		}
		isFloat := strings.ContainsAny(text, ".eE")
		l.skipWhitespace()
		if isFloat {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				l.syntaxError("invalid float " + text)
			}
			return &Value{Kind: FloatValue, Raw: f, Loc: loc}
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			l.syntaxError("invalid int " + text)
		}
		return &Value{Kind: IntValue, Raw: n, Loc: loc}

	case l.next == scanner.Float:
		f, err := strconv.ParseFloat(l.text(), 64)
		if err != nil {
			l.syntaxError("invalid float " + l.text())
		}
		l.skipWhitespace()
		return &Value{Kind: FloatValue, Raw: f, Loc: loc}

	case l.next == scanner.String:
		s, err := strconv.Unquote(l.text())
		if err != nil {
			l.syntaxError("invalid string " + l.text())
		}
		l.skipWhitespace()
		return &Value{Kind: StringValue, Raw: s, Loc: loc}

	case l.next == scanner.Ident:
		switch l.text() {
		case "true":
			l.skipWhitespace()
			return &Value{Kind: BooleanValue, Raw: true, Loc: loc}
		case "false":
			l.skipWhitespace()
			return &Value{Kind: BooleanValue, Raw: false, Loc: loc}
		case "null":
			l.skipWhitespace()
			return &Value{Kind: NullValue, Loc: loc}
		default:
			name := l.text()
			l.skipWhitespace()
			return &Value{Kind: EnumValue, Raw: name, Loc: loc}
		}

	case l.next == '[':
		l.consume('[')
		var list []*Value
		for l.next != ']' {
			list = append(list, parseValue(l, constOnly))
		}
		l.consume(']')
		return &Value{Kind: ListValue, List: list, Loc: loc}

	case l.next == '{':
		l.consume('{')
		obj := map[string]*Value{}
		for l.next != '}' {
			name := l.consumeIdent()
			l.consume(':')
			obj[name] = parseValue(l, constOnly)
		}
		l.consume('}')
		return &Value{Kind: ObjectValue, Object: obj, Loc: loc}
	}

	l.syntaxError("expected value, found " + l.text())
	return nil
}

// parseArguments parses an optional `(name: value, ...)` list.
func parseArguments(l *lexer, constOnly bool) map[string]*Value {
	if l.next != '(' {
		return nil
	}
	l.consume('(')
	args := map[string]*Value{}
	for l.next != ')' {
		name := l.consumeIdent()
		l.consume(':')
		args[name] = parseValue(l, constOnly)
	}
	l.consume(')')
	return args
}

// parseDirectives parses zero or more `@name(args...)` annotations.
func parseDirectives(l *lexer, constOnly bool) []Directive {
	var directives []Directive
	for l.next == '@' {
		loc := l.location()
		l.consume('@')
		name := l.consumeIdent()
		directives = append(directives, Directive{Name: name, Args: parseArguments(l, constOnly), Loc: loc})
	}
	return directives
}

// parseType parses a `Name`, `[Name]`, `Name!`, or `[Name!]!` type
// reference.
func parseType(l *lexer) *TypeRef {
	var t *TypeRef
	if l.next == '[' {
		l.consume('[')
		inner := parseType(l)
		l.consume(']')
		t = &TypeRef{List: inner}
	} else {
		t = &TypeRef{Name: l.consumeIdent()}
	}
	if l.next == '!' {
		l.consume('!')
		t.NonNull = true
	}
	return t
}

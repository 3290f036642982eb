package ast

import (
	"fmt"
	"text/scanner"
)

// Parse parses a GraphQL executable document (one or more operations plus
// fragment definitions). Mirrors the teacher's `graphql.Parse` entry point
// (used throughout federation/executor_test.go as `graphql.MustParse`),
// but returns our own ast.Document instead of reusing thunder's
// reflection-bound Query type, per the Design Notes guidance to keep the
// plan/document owned rather than borrowed.
func Parse(source string) (doc *Document, err *Error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(syntaxError)
			if !ok {
				panic(r)
			}
			err = &Error{Message: fmt.Sprintf("syntax error: %s", se)}
		}
	}()

	l := newLexer(source)
	doc = &Document{Fragments: map[string]*FragmentDefinition{}}

	for l.peek() != scanner.EOF {
		switch {
		case l.peekKeyword("query"), l.peekKeyword("mutation"), l.peekKeyword("subscription"):
			doc.Operations = append(doc.Operations, parseOperation(l))
		case l.peek() == '{':
			// Shorthand anonymous query.
			loc := l.location()
			doc.Operations = append(doc.Operations, &OperationDefinition{
				Kind:         Query,
				SelectionSet: parseSelectionSet(l),
				Loc:          loc,
			})
		case l.peekKeyword("fragment"):
			frag := parseFragmentDefinition(l)
			doc.Fragments[frag.Name] = frag
		default:
			l.syntaxError("expected operation or fragment, found " + l.text())
		}
	}
	return doc, nil
}

// MustParse is a convenience used by tests and internal tooling, grounded
// on federation/executor_test.go's use of graphql.MustParse.
func MustParse(source string) *Document {
	doc, err := Parse(source)
	if err != nil {
		panic(err)
	}
	return doc
}

func parseOperation(l *lexer) *OperationDefinition {
	loc := l.location()
	kind := OperationKind(l.consumeIdent())

	op := &OperationDefinition{Kind: kind, Loc: loc}
	if l.peek() != '(' && l.peek() != '{' && l.peek() != '@' {
		op.Name = l.consumeIdent()
	}
	if l.peek() == '(' {
		op.VariableDefinitions = parseVariableDefinitions(l)
	}
	op.Directives = parseDirectives(l, false)
	op.SelectionSet = parseSelectionSet(l)
	return op
}

func parseVariableDefinitions(l *lexer) []*VariableDefinition {
	l.consume('(')
	var defs []*VariableDefinition
	for l.peek() != ')' {
		loc := l.location()
		l.consume('$')
		name := l.consumeIdent()
		l.consume(':')
		typ := parseType(l)
		var def *Value
		if l.peek() == '=' {
			l.consume('=')
			def = parseValue(l, true)
		}
		defs = append(defs, &VariableDefinition{Name: name, Type: typ, Default: def, Loc: loc})
	}
	l.consume(')')
	return defs
}

func parseSelectionSet(l *lexer) *SelectionSet {
	loc := l.location()
	l.consume('{')
	ss := &SelectionSet{Loc: loc}
	for l.peek() != '}' {
		ss.Selections = append(ss.Selections, parseSelection(l))
	}
	l.consume('}')
	return ss
}

func parseSelection(l *lexer) *Selection {
	if l.peek() == '.' {
		return parseFragmentSelection(l)
	}
	return parseFieldSelection(l)
}

func parseFieldSelection(l *lexer) *Selection {
	loc := l.location()
	name := l.consumeIdent()
	alias := ""
	if l.peek() == ':' {
		l.consume(':')
		alias = name
		name = l.consumeIdent()
	}

	sel := &Selection{Name: name, Alias: alias, Loc: loc}
	sel.Args = parseArguments(l, false)
	sel.Directives = parseDirectives(l, false)
	if l.peek() == '{' {
		sel.SelectionSet = parseSelectionSet(l)
	}
	return sel
}

func parseFragmentSelection(l *lexer) *Selection {
	loc := l.location()
	l.consume('.')
	l.consume('.')
	l.consume('.')

	if l.peekKeyword("on") {
		l.consumeIdent() // "on"
		typeCondition := l.consumeIdent()
		directives := parseDirectives(l, false)
		ss := parseSelectionSet(l)
		return &Selection{InlineFragment: true, TypeCondition: typeCondition, Directives: directives, SelectionSet: ss, Loc: loc}
	}
	if l.peek() == '@' {
		directives := parseDirectives(l, false)
		ss := parseSelectionSet(l)
		return &Selection{InlineFragment: true, Directives: directives, SelectionSet: ss, Loc: loc}
	}
	if l.peek() == '{' {
		ss := parseSelectionSet(l)
		return &Selection{InlineFragment: true, SelectionSet: ss, Loc: loc}
	}

	name := l.consumeIdent()
	directives := parseDirectives(l, false)
	return &Selection{FragmentSpread: name, Directives: directives, Loc: loc}
}

func parseFragmentDefinition(l *lexer) *FragmentDefinition {
	loc := l.location()
	l.consumeIdent() // "fragment"
	name := l.consumeIdent()
	l.consumeName("on")
	typeCondition := l.consumeIdent()
	directives := parseDirectives(l, false)
	ss := parseSelectionSet(l)
	return &FragmentDefinition{Name: name, TypeCondition: typeCondition, Directives: directives, SelectionSet: ss, Loc: loc}
}

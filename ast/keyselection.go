package ast

import "fmt"

// ParseFieldSet parses the string argument carried by `@key(fields: "...")`,
// `@requires(fields: "...")`, and `@provides(fields: "...")` directives: a
// bare, brace-less selection set of field names, optionally nested, e.g.
// `"id"` or `"id organization { id }"`. Grounded on spec.md §3's "nested
// selection tree of field names, ordered" and §9's note that the exact
// nesting/alias convention must match what subgraphs accept: we require no
// aliases and no arguments in a field set, since the federation convention
// these annotate never uses them.
func ParseFieldSet(fields string) (ss *SelectionSet, err *Error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(syntaxError)
			if !ok {
				panic(r)
			}
			err = &Error{Message: fmt.Sprintf("invalid field set %q: %s", fields, se)}
		}
	}()

	l := newLexer("{" + fields + "}")
	ss = parseFieldSetSelectionSet(l)
	return ss, nil
}

func parseFieldSetSelectionSet(l *lexer) *SelectionSet {
	loc := l.location()
	l.consume('{')
	set := &SelectionSet{Loc: loc}
	for l.peek() != '}' {
		sloc := l.location()
		name := l.consumeIdent()
		sel := &Selection{Name: name, Loc: sloc}
		if l.peek() == '{' {
			sel.SelectionSet = parseFieldSetSelectionSet(l)
		}
		set.Selections = append(set.Selections, sel)
	}
	l.consume('}')
	return set
}

package ast

import (
	"fmt"
	"text/scanner"
)

// TypeKind tags the variant of a schema-definition-language type.
type TypeKind string

const (
	ObjectKind    TypeKind = "OBJECT"
	InterfaceKind TypeKind = "INTERFACE"
	UnionKind     TypeKind = "UNION"
	EnumKind      TypeKind = "ENUM"
	InputKind     TypeKind = "INPUT_OBJECT"
	ScalarKind    TypeKind = "SCALAR"
)

// InputValueDefinition is one argument of a field, or one field of an
// input object.
type InputValueDefinition struct {
	Name       string
	Type       *TypeRef
	Default    *Value
	Directives []Directive
	Loc        Location
}

// FieldDefinition is one field of an object or interface type in SDL.
type FieldDefinition struct {
	Name       string
	Args       []*InputValueDefinition
	Type       *TypeRef
	Directives []Directive
	Loc        Location
}

// EnumValueDefinition is one member of an enum type in SDL.
type EnumValueDefinition struct {
	Name       string
	Directives []Directive
	Loc        Location
}

// TypeDefinition is one `type`/`interface`/`union`/`enum`/`input`/`scalar`
// block in a subgraph's SDL contribution, optionally prefixed `extend`.
type TypeDefinition struct {
	Kind       TypeKind
	Name       string
	Extend     bool
	Implements []string
	Fields     []*FieldDefinition
	UnionTypes []string
	EnumValues []*EnumValueDefinition
	Directives []Directive
	Loc        Location
}

// SchemaDefinition is a top-level `schema { query: Query ... }` block.
// Per spec.md §4.1 these are forbidden in subgraph SDL.
type SchemaDefinition struct {
	Loc Location
}

// SDLDocument is a parsed subgraph schema contribution.
type SDLDocument struct {
	Types       []*TypeDefinition
	SchemaDefs  []*SchemaDefinition
	Directives_ []Directive // directive definitions are accepted and ignored
}

// ParseSDL parses one subgraph's SDL contribution.
func ParseSDL(source string) (doc *SDLDocument, err *Error) {
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
	doc = &SDLDocument{}
	for l.peek() != scanner.EOF {
		switch {
		case l.peekKeyword("schema"):
			doc.SchemaDefs = append(doc.SchemaDefs, parseSchemaDefinition(l))
		case l.peekKeyword("extend"):
			l.consumeIdent()
			doc.Types = append(doc.Types, parseTypeDefinition(l, true))
		case l.peekKeyword("directive"):
			skipDirectiveDefinition(l)
		case l.peekKeyword("type"), l.peekKeyword("interface"), l.peekKeyword("union"),
			l.peekKeyword("enum"), l.peekKeyword("input"), l.peekKeyword("scalar"):
			doc.Types = append(doc.Types, parseTypeDefinition(l, false))
		default:
			l.syntaxError("expected type definition, found " + l.text())
		}
	}
	return doc, nil
}

func parseSchemaDefinition(l *lexer) *SchemaDefinition {
	loc := l.location()
	l.consumeIdent() // "schema"
	l.consume('{')
	for l.peek() != '}' {
		l.consumeIdent()
		l.consume(':')
		l.consumeIdent()
	}
	l.consume('}')
	return &SchemaDefinition{Loc: loc}
}

// skipDirectiveDefinition consumes a `directive @name(args) on LOCATIONS`
// declaration; gateway composition does not need directive definitions,
// only their usages.
func skipDirectiveDefinition(l *lexer) {
	l.consumeIdent() // "directive"
	l.consume('@')
	l.consumeIdent()
	if l.peek() == '(' {
		l.consume('(')
		for l.peek() != ')' {
			l.consumeIdent()
			l.consume(':')
			parseType(l)
			if l.peek() == '=' {
				l.consume('=')
				parseValue(l, true)
			}
		}
		l.consume(')')
	}
	if l.peekKeyword("repeatable") {
		l.consumeIdent()
	}
	l.consumeName("on")
	if l.peek() == '|' {
		l.consume('|')
	}
	for {
		l.consumeIdent()
		if l.peek() != '|' {
			break
		}
		l.consume('|')
	}
}

func parseTypeDefinition(l *lexer, extend bool) *TypeDefinition {
	loc := l.location()
	kw := l.consumeIdent()
	def := &TypeDefinition{Extend: extend, Loc: loc}
	switch kw {
	case "type":
		def.Kind = ObjectKind
	case "interface":
		def.Kind = InterfaceKind
	case "union":
		def.Kind = UnionKind
	case "enum":
		def.Kind = EnumKind
	case "input":
		def.Kind = InputKind
	case "scalar":
		def.Kind = ScalarKind
	default:
		l.syntaxError("unknown type definition keyword " + kw)
	}
	def.Name = l.consumeIdent()

	if def.Kind == ObjectKind || def.Kind == InterfaceKind {
		if l.peekKeyword("implements") {
			l.consumeIdent()
			if l.peek() == '&' {
				l.consume('&')
			}
			for {
				def.Implements = append(def.Implements, l.consumeIdent())
				if l.peek() != '&' {
					break
				}
				l.consume('&')
			}
		}
	}

	def.Directives = parseDirectives(l, true)

	switch def.Kind {
	case ObjectKind, InterfaceKind:
		if l.peek() == '{' {
			def.Fields = parseFieldDefinitions(l)
		}
	case InputKind:
		if l.peek() == '{' {
			def.Fields = parseFieldDefinitions(l)
		}
	case UnionKind:
		if l.peek() == '=' {
			l.consume('=')
			if l.peek() == '|' {
				l.consume('|')
			}
			for {
				def.UnionTypes = append(def.UnionTypes, l.consumeIdent())
				if l.peek() != '|' {
					break
				}
				l.consume('|')
			}
		}
	case EnumKind:
		if l.peek() == '{' {
			l.consume('{')
			for l.peek() != '}' {
				vloc := l.location()
				name := l.consumeIdent()
				dirs := parseDirectives(l, true)
				def.EnumValues = append(def.EnumValues, &EnumValueDefinition{Name: name, Directives: dirs, Loc: vloc})
			}
			l.consume('}')
		}
	case ScalarKind:
		// no body
	}
	return def
}

func parseFieldDefinitions(l *lexer) []*FieldDefinition {
	l.consume('{')
	var fields []*FieldDefinition
	for l.peek() != '}' {
		fields = append(fields, parseFieldDefinition(l))
	}
	l.consume('}')
	return fields
}

func parseFieldDefinition(l *lexer) *FieldDefinition {
	loc := l.location()
	name := l.consumeIdent()
	fd := &FieldDefinition{Name: name, Loc: loc}
	if l.peek() == '(' {
		l.consume('(')
		for l.peek() != ')' {
			fd.Args = append(fd.Args, parseInputValueDefinition(l))
		}
		l.consume(')')
	}
	l.consume(':')
	fd.Type = parseType(l)
	fd.Directives = parseDirectives(l, true)
	return fd
}

func parseInputValueDefinition(l *lexer) *InputValueDefinition {
	loc := l.location()
	name := l.consumeIdent()
	l.consume(':')
	typ := parseType(l)
	var def *Value
	if l.peek() == '=' {
		l.consume('=')
		def = parseValue(l, true)
	}
	dirs := parseDirectives(l, true)
	return &InputValueDefinition{Name: name, Type: typ, Default: def, Directives: dirs, Loc: loc}
}

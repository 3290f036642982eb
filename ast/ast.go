// Package ast holds the document representation shared by the query
// parser, the schema composer, the validator, and the planner. A single
// node shape is reused for both executable documents (queries, mutations,
// subscriptions) and subgraph SDL documents, mirroring how the teacher
// corpus keeps one selection-set shape across its federation and graphql
// packages instead of two parallel trees.
package ast

import "fmt"

// Location is a line/column position in the original source text.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a GraphQL-shaped error: message, optional source locations,
// optional response path, optional extensions.
type Error struct {
	Message    string                 `json:"message"`
	Locations  []Location             `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Rule       string                 `json:"-"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("graphql: %s", e.Message)
}

func Errorf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

func ErrorfLoc(loc Location, format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Locations: []Location{loc}}
}

// ValueKind tags the variant carried by Value.
type ValueKind int

const (
	NullValue ValueKind = iota
	IntValue
	FloatValue
	StringValue
	BooleanValue
	EnumValue
	ListValue
	ObjectValue
	VariableValue
)

// Value is an unevaluated GraphQL input value: a literal, a variable
// reference, or a composite (list/object) of values.
type Value struct {
	Kind     ValueKind
	Raw      interface{}       // scalar payload for Int/Float/String/Boolean/Enum
	Variable string            // set when Kind == VariableValue
	List     []*Value          // set when Kind == ListValue
	Object   map[string]*Value // set when Kind == ObjectValue
	Loc      Location
}

// Directive is a `@name(args...)` annotation on a selection, fragment, or
// variable definition.
type Directive struct {
	Name string
	Args map[string]*Value
	Loc  Location
}

// VariableDefinition declares `$name: Type = default` on an operation.
type VariableDefinition struct {
	Name    string
	Type    *TypeRef
	Default *Value
	Loc     Location
}

// TypeRef is a (possibly wrapped) reference to a named type: `Foo`,
// `[Foo]`, `Foo!`, `[Foo!]!`, etc.
type TypeRef struct {
	NonNull bool
	List    *TypeRef // set when this ref is a list; Name is empty in that case
	Name    string   // set when this ref is a named type
}

func (t *TypeRef) String() string {
	if t == nil {
		return "<nil>"
	}
	var s string
	if t.List != nil {
		s = "[" + t.List.String() + "]"
	} else {
		s = t.Name
	}
	if t.NonNull {
		s += "!"
	}
	return s
}

// NamedType returns the innermost named type, stripping List/NonNull
// wrappers. Grounded on the original implementation's TypeExt helper
// (crates/core/src/schema/type_ext.rs).
func (t *TypeRef) NamedType() string {
	for t.List != nil {
		t = t.List
	}
	return t.Name
}

// Selection is one field, fragment spread, or inline fragment inside a
// SelectionSet.
type Selection struct {
	// Field selections.
	Alias        string
	Name         string
	Args         map[string]*Value
	Directives   []Directive
	SelectionSet *SelectionSet

	// Fragment spread: `...Name`.
	FragmentSpread string

	// Inline fragment: `... on Type { ... }` (TypeCondition may be empty).
	InlineFragment bool
	TypeCondition  string

	Loc Location
}

// ResponseKey is the key this selection occupies in the response object:
// the alias if present, else the field name.
func (s *Selection) ResponseKey() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Name
}

// SelectionSet is an ordered list of selections (fields, fragment spreads,
// inline fragments) between `{` and `}`.
type SelectionSet struct {
	Selections []*Selection
	Loc        Location
}

// OperationKind distinguishes query/mutation/subscription.
type OperationKind string

const (
	Query        OperationKind = "query"
	Mutation     OperationKind = "mutation"
	Subscription OperationKind = "subscription"
)

// OperationDefinition is one `query|mutation|subscription Name(...) { ... }`
// in an executable document.
type OperationDefinition struct {
	Kind                OperationKind
	Name                string
	VariableDefinitions []*VariableDefinition
	Directives          []Directive
	SelectionSet        *SelectionSet
	Loc                 Location
}

// FragmentDefinition is a top-level `fragment Name on Type { ... }`.
type FragmentDefinition struct {
	Name          string
	TypeCondition string
	Directives    []Directive
	SelectionSet  *SelectionSet
	Loc           Location
}

// Document is a parsed executable document: some number of operations and
// fragment definitions.
type Document struct {
	Operations []*OperationDefinition
	Fragments  map[string]*FragmentDefinition
}

// OperationByName picks the requested operation, defaulting to the sole
// operation when the document has exactly one and no name was requested.
func (d *Document) OperationByName(name string) (*OperationDefinition, error) {
	if name == "" {
		if len(d.Operations) == 1 {
			return d.Operations[0], nil
		}
		return nil, fmt.Errorf("must provide operation name if query contains multiple operations")
	}
	for _, op := range d.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("unknown operation named %q", name)
}

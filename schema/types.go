// Package schema holds the in-memory composed type graph the planner,
// validator, and introspection resolver all consume: the "schema model"
// of spec.md §3. Grounded on federation/schema.go's introspection-derived
// SchemaWithFederationInfo, but built directly from subgraph SDL (§4.1)
// instead of round-tripping through an introspection query, and carrying
// per-service key/requires/provides selections instead of thunder's single
// Federation() key function.
package schema

import "github.com/gqlfederate/gateway/ast"

// Kind tags the variant of a composed type.
type Kind string

const (
	Scalar      Kind = "SCALAR"
	Object      Kind = "OBJECT"
	Interface   Kind = "INTERFACE"
	Union       Kind = "UNION"
	Enum        Kind = "ENUM"
	InputObject Kind = "INPUT_OBJECT"
)

// Argument is one argument definition on a field.
type Argument struct {
	Name        string
	Description string
	Type        *ast.TypeRef
	Default     *ast.Value
}

// Field is one field descriptor, carrying everything spec.md §3 names:
// name, description, args, result type, optional owning service, optional
// requires/provides key selections, and a deprecation tag.
type Field struct {
	Name              string
	Description       string
	Args              []*Argument
	Type              *ast.TypeRef
	Service           string // "" if not independently owned (inherits the type's owner)
	Requires          *ast.SelectionSet
	Provides          *ast.SelectionSet
	DeprecationReason string
	IsDeprecated      bool
}

// EnumValueDescriptor is one member of an enum type, carrying the
// deprecation metadata introspection's `enumValues(includeDeprecated: ...)`
// needs to both report and filter on (spec.md §4.5).
type EnumValueDescriptor struct {
	Name              string
	DeprecationReason string
	IsDeprecated      bool
}

// Type is one type descriptor: scalar/object/interface/union/enum/input,
// with the owning-service map and per-service key selections spec.md §3
// requires.
type Type struct {
	Kind        Kind
	Name        string
	Description string

	// Owner is the service holding the canonical (non-extend) definition
	// of an object type, or "" for interfaces/unions/enums/inputs/scalars
	// and for types with no non-extend owner.
	Owner string

	// Keys maps service name to the key selections that service can use
	// to re-identify an instance of this type (spec.md §3 invariant: one
	// complete key per resolving service).
	Keys map[string][]*ast.SelectionSet

	Fields     map[string]*Field
	FieldOrder []string // preserves SDL declaration order, per spec.md §3

	Interfaces    []string // implemented interfaces, object types only
	PossibleTypes []string // concrete member types, interface/union only

	EnumValues []*EnumValueDescriptor

	InputFields map[string]*Argument // input-object fields

	IsIntrospection bool
}

// NamedType returns the type a (possibly List/NonNull-wrapped) reference
// points at.
func NamedType(t *ast.TypeRef) string {
	return t.NamedType()
}

// IsNonNull reports whether the outermost wrapper of a type reference is
// NonNull. Ported from the original implementation's TypeExt helper
// (crates/core/src/schema/type_ext.rs).
func IsNonNull(t *ast.TypeRef) bool {
	return t != nil && t.NonNull
}

// IsList reports whether a type reference is (possibly non-null) a list.
func IsList(t *ast.TypeRef) bool {
	return t != nil && t.List != nil
}

// Schema is the composed type graph shared immutably by every concurrent
// request, per spec.md §3's lifecycle rule.
type Schema struct {
	Types        map[string]*Type
	QueryType        string
	MutationType     string
	SubscriptionType string

	// Services lists every subgraph that contributed to this schema,
	// insertion ordered, for deterministic debug output.
	Services []string
}

// RootTypeName returns the type name for a root operation kind, or "" if
// the schema has no such root (spec.md §3 invariant: root types exist iff
// some subgraph contributed a field to them).
func (s *Schema) RootTypeName(kind ast.OperationKind) string {
	switch kind {
	case ast.Query:
		return s.QueryType
	case ast.Mutation:
		return s.MutationType
	case ast.Subscription:
		return s.SubscriptionType
	default:
		return ""
	}
}

// Lookup returns the named type, or nil.
func (s *Schema) Lookup(name string) *Type {
	return s.Types[name]
}

// FieldOwner resolves the service that should be asked to resolve `field`
// declared on `typ`: the field's own Service if set, else the type's
// Owner (spec.md GLOSSARY: "Owner ... fallback source of keys when a
// field-specific owner is unspecified").
func FieldOwner(typ *Type, field *Field) string {
	if field.Service != "" {
		return field.Service
	}
	return typ.Owner
}

// KeyFor returns a key selection usable by `service` to re-identify
// instances of `typ`, falling back to the type's owner's key when the
// service itself declared none (spec.md §4.3 field expansion: "find a key
// selection for that service on the parent type (or on the parent's owner
// as a fallback)"). The first declared key is used. Composition does not
// require a type to declare any key, so this returns nil when neither the
// service nor the owner declared one.
func KeyFor(typ *Type, service string) *ast.SelectionSet {
	if keys, ok := typ.Keys[service]; ok && len(keys) > 0 {
		return keys[0]
	}
	if typ.Owner != "" && typ.Owner != service {
		if keys, ok := typ.Keys[typ.Owner]; ok && len(keys) > 0 {
			return keys[0]
		}
	}
	return nil
}

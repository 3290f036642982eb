package schema

import "github.com/gqlfederate/gateway/ast"

// introspectionTypeNames lists every built-in type synthesized by
// AddIntrospectionTypes; IsIntrospectionType checks names against it.
var introspectionTypeNames = []string{
	"__Schema", "__Type", "__Field", "__InputValue", "__EnumValue",
	"__Directive", "__TypeKind", "__DirectiveLocation",
}

// enumDescriptors builds non-deprecated EnumValueDescriptors for the
// built-in introspection enums, none of which ever deprecate a member.
func enumDescriptors(names ...string) []*EnumValueDescriptor {
	out := make([]*EnumValueDescriptor, len(names))
	for i, n := range names {
		out[i] = &EnumValueDescriptor{Name: n}
	}
	return out
}

func namedRef(name string) *ast.TypeRef  { return &ast.TypeRef{Name: name} }
func nonNull(t *ast.TypeRef) *ast.TypeRef { return &ast.TypeRef{List: t.List, Name: t.Name, NonNull: true} }
func listOf(t *ast.TypeRef) *ast.TypeRef  { return &ast.TypeRef{List: t} }

// AddIntrospectionTypes merges the built-in introspection types into the
// schema and synthesizes `__schema`/`__type` on the query root, per
// spec.md §4.1. Idempotent: safe to call once, after composition.
func AddIntrospectionTypes(s *Schema) {
	if _, ok := s.Types["__Type"]; ok {
		return
	}

	mk := func(name string, fields map[string]*ast.TypeRef) *Type {
		t := &Type{Kind: Object, Name: name, Fields: map[string]*Field{}, IsIntrospection: true}
		for _, fname := range fieldOrderFor(name) {
			t.Fields[fname] = &Field{Name: fname, Type: fields[fname]}
			t.FieldOrder = append(t.FieldOrder, fname)
		}
		return t
	}

	s.Types["__Schema"] = mk("__Schema", map[string]*ast.TypeRef{
		"types":            nonNull(listOf(nonNull(namedRef("__Type")))),
		"queryType":        nonNull(namedRef("__Type")),
		"mutationType":     namedRef("__Type"),
		"subscriptionType": namedRef("__Type"),
		"directives":       nonNull(listOf(nonNull(namedRef("__Directive")))),
	})

	s.Types["__Type"] = mk("__Type", map[string]*ast.TypeRef{
		"kind":          nonNull(namedRef("__TypeKind")),
		"name":          namedRef("String"),
		"description":   namedRef("String"),
		"fields":        listOf(nonNull(namedRef("__Field"))),
		"interfaces":    listOf(nonNull(namedRef("__Type"))),
		"possibleTypes": listOf(nonNull(namedRef("__Type"))),
		"enumValues":    listOf(nonNull(namedRef("__EnumValue"))),
		"inputFields":   listOf(nonNull(namedRef("__InputValue"))),
		"ofType":        namedRef("__Type"),
	})

	s.Types["__Field"] = mk("__Field", map[string]*ast.TypeRef{
		"name":              nonNull(namedRef("String")),
		"description":       namedRef("String"),
		"args":              nonNull(listOf(nonNull(namedRef("__InputValue")))),
		"type":              nonNull(namedRef("__Type")),
		"isDeprecated":      nonNull(namedRef("Boolean")),
		"deprecationReason": namedRef("String"),
	})

	s.Types["__InputValue"] = mk("__InputValue", map[string]*ast.TypeRef{
		"name":         nonNull(namedRef("String")),
		"description":  namedRef("String"),
		"type":         nonNull(namedRef("__Type")),
		"defaultValue": namedRef("String"),
	})

	s.Types["__EnumValue"] = mk("__EnumValue", map[string]*ast.TypeRef{
		"name":              nonNull(namedRef("String")),
		"description":       namedRef("String"),
		"isDeprecated":      nonNull(namedRef("Boolean")),
		"deprecationReason": namedRef("String"),
	})

	s.Types["__Directive"] = mk("__Directive", map[string]*ast.TypeRef{
		"name":        nonNull(namedRef("String")),
		"description": namedRef("String"),
		"locations":   nonNull(listOf(nonNull(namedRef("__DirectiveLocation")))),
		"args":        nonNull(listOf(nonNull(namedRef("__InputValue")))),
	})

	s.Types["__TypeKind"] = &Type{
		Kind: Enum, Name: "__TypeKind", IsIntrospection: true,
		EnumValues: enumDescriptors("SCALAR", "OBJECT", "INTERFACE", "UNION", "ENUM", "INPUT_OBJECT", "LIST", "NON_NULL"),
	}
	s.Types["__DirectiveLocation"] = &Type{
		Kind: Enum, Name: "__DirectiveLocation", IsIntrospection: true,
		EnumValues: enumDescriptors("QUERY", "MUTATION", "SUBSCRIPTION", "FIELD", "FRAGMENT_DEFINITION", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"),
	}

	query := s.Types[s.QueryType]
	if query == nil {
		query = &Type{Kind: Object, Name: s.QueryType, Fields: map[string]*Field{}}
		s.Types[s.QueryType] = query
	}
	query.Fields["__schema"] = &Field{Name: "__schema", Type: nonNull(namedRef("__Schema"))}
	query.FieldOrder = append(query.FieldOrder, "__schema")
	query.Fields["__type"] = &Field{
		Name: "__type",
		Type: namedRef("__Type"),
		Args: []*Argument{{Name: "name", Type: nonNull(namedRef("String"))}},
	}
	query.FieldOrder = append(query.FieldOrder, "__type")
}

func fieldOrderFor(typeName string) []string {
	switch typeName {
	case "__Schema":
		return []string{"types", "queryType", "mutationType", "subscriptionType", "directives"}
	case "__Type":
		return []string{"kind", "name", "description", "fields", "interfaces", "possibleTypes", "enumValues", "inputFields", "ofType"}
	case "__Field":
		return []string{"name", "description", "args", "type", "isDeprecated", "deprecationReason"}
	case "__InputValue":
		return []string{"name", "description", "type", "defaultValue"}
	case "__EnumValue":
		return []string{"name", "description", "isDeprecated", "deprecationReason"}
	case "__Directive":
		return []string{"name", "description", "locations", "args"}
	}
	return nil
}

// IsIntrospectionType reports whether name is one of the built-in
// introspection types.
func IsIntrospectionType(name string) bool {
	for _, n := range introspectionTypeNames {
		if n == name {
			return true
		}
	}
	return false
}

// Package introspection answers `__schema`/`__type` root selections against
// a composed Schema, per spec.md §4.1's "schema model exposed via standard
// introspection" closing note. Grounded on
// graphql/introspection/introspection.go's static __Schema/__Type/__Field
// model, rebuilt over plain value trees (map[string]interface{}) instead of
// thunder's schemabuilder-registered FieldFuncs, since the gateway has no
// runtime resolver registry to reflect over — only the composed schema.Schema.
package introspection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/schema"
)

// Resolve executes one `__schema` or `__type` selection and returns its
// JSON-shaped value, honoring @skip/@include and fragment spreads in the
// requested selection set. The planner routes these root fields directly
// here instead of into a subgraph fetch (spec.md §4.3).
func Resolve(s *schema.Schema, sel *ast.Selection, doc *ast.Document, vars map[string]interface{}) (interface{}, []*ast.Error) {
	switch sel.Name {
	case "__schema":
		return project(schemaValue(s), sel.SelectionSet, doc, vars), nil
	case "__type":
		name := stringArg(sel.Args["name"], vars)
		typ := s.Lookup(name)
		if typ == nil {
			return nil, nil
		}
		return project(typeValue(s, typ), sel.SelectionSet, doc, vars), nil
	default:
		return nil, []*ast.Error{ast.Errorf("introspection cannot resolve field %q", sel.Name)}
	}
}

// project shapes a raw value tree (built with "__typename"-tagged maps) down
// to exactly what the selection set asked for, expanding fragment spreads
// and inline fragments and applying @skip/@include.
func project(value interface{}, ss *ast.SelectionSet, doc *ast.Document, vars map[string]interface{}) interface{} {
	if value == nil || ss == nil {
		return value
	}
	if list, ok := value.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, item := range list {
			out[i] = project(item, ss, doc, vars)
		}
		return out
	}
	m, ok := value.(map[string]interface{})
	if !ok {
		return value
	}
	out := map[string]interface{}{}
	projectInto(out, m, ss, doc, vars)
	return out
}

func projectInto(out, m map[string]interface{}, ss *ast.SelectionSet, doc *ast.Document, vars map[string]interface{}) {
	for _, sel := range ss.Selections {
		if !shouldInclude(sel.Directives, vars) {
			continue
		}
		switch {
		case sel.FragmentSpread != "":
			if frag, ok := doc.Fragments[sel.FragmentSpread]; ok {
				projectInto(out, m, frag.SelectionSet, doc, vars)
			}
		case sel.InlineFragment:
			projectInto(out, m, sel.SelectionSet, doc, vars)
		case sel.Name == "__typename":
			out[sel.ResponseKey()] = m["__typename"]
		case sel.Name == "fields" || sel.Name == "enumValues":
			val, ok := m[sel.Name]
			if !ok {
				continue
			}
			list, _ := val.([]interface{})
			filtered := filterDeprecated(list, includeDeprecatedArg(sel, vars))
			out[sel.ResponseKey()] = project(filtered, sel.SelectionSet, doc, vars)
		default:
			val, ok := m[sel.Name]
			if !ok {
				continue
			}
			out[sel.ResponseKey()] = project(val, sel.SelectionSet, doc, vars)
		}
	}
}

// includeDeprecatedArg reads the `includeDeprecated` argument off a
// `fields`/`enumValues` selection, defaulting to false per spec.md §4.5.
func includeDeprecatedArg(sel *ast.Selection, vars map[string]interface{}) bool {
	arg, ok := sel.Args["includeDeprecated"]
	if !ok {
		return false
	}
	switch arg.Kind {
	case ast.BooleanValue:
		b, _ := arg.Raw.(bool)
		return b
	case ast.VariableValue:
		if v, ok := vars[arg.Variable]; ok {
			b, _ := v.(bool)
			return b
		}
	}
	return false
}

// filterDeprecated drops deprecated __Field/__EnumValue entries unless
// includeDeprecated is set, since typeValue/fieldsValue/enumValuesValue
// always build the full list regardless of any particular selection's args.
func filterDeprecated(list []interface{}, includeDeprecated bool) []interface{} {
	if includeDeprecated {
		return list
	}
	out := make([]interface{}, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			out = append(out, item)
			continue
		}
		if dep, _ := m["isDeprecated"].(bool); dep {
			continue
		}
		out = append(out, item)
	}
	return out
}

func shouldInclude(dirs []ast.Directive, vars map[string]interface{}) bool {
	include := true
	for _, d := range dirs {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		var v bool
		if arg, ok := d.Args["if"]; ok {
			switch arg.Kind {
			case ast.BooleanValue:
				v, _ = arg.Raw.(bool)
			case ast.VariableValue:
				if vv, ok := vars[arg.Variable]; ok {
					v, _ = vv.(bool)
				}
			}
		}
		if d.Name == "skip" && v {
			include = false
		}
		if d.Name == "include" && !v {
			include = false
		}
	}
	return include
}

func stringArg(v *ast.Value, vars map[string]interface{}) string {
	if v == nil {
		return ""
	}
	switch v.Kind {
	case ast.StringValue:
		s, _ := v.Raw.(string)
		return s
	case ast.VariableValue:
		if vv, ok := vars[v.Variable]; ok {
			s, _ := vv.(string)
			return s
		}
	}
	return ""
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func schemaValue(s *schema.Schema) map[string]interface{} {
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	types := make([]interface{}, 0, len(names))
	for _, name := range names {
		types = append(types, typeValue(s, s.Types[name]))
	}

	v := map[string]interface{}{
		"__typename":       "__Schema",
		"types":            types,
		"queryType":        nil,
		"mutationType":     nil,
		"subscriptionType": nil,
		"directives":       directivesValue(),
	}
	if s.QueryType != "" {
		v["queryType"] = typeValue(s, s.Lookup(s.QueryType))
	}
	if s.MutationType != "" {
		v["mutationType"] = typeValue(s, s.Lookup(s.MutationType))
	}
	if s.SubscriptionType != "" {
		v["subscriptionType"] = typeValue(s, s.Lookup(s.SubscriptionType))
	}
	return v
}

func typeValue(s *schema.Schema, typ *schema.Type) map[string]interface{} {
	v := map[string]interface{}{
		"__typename":  "__Type",
		"kind":        string(typ.Kind),
		"name":        typ.Name,
		"description": nilIfEmpty(typ.Description),
		"ofType":      nil,
		"fields":      nil,
		"interfaces":  nil,
		"possibleTypes": nil,
		"enumValues":    nil,
		"inputFields":   nil,
	}
	switch typ.Kind {
	case schema.Object:
		v["fields"] = fieldsValue(s, typ)
		v["interfaces"] = interfacesValue(s, typ)
	case schema.Interface:
		v["fields"] = fieldsValue(s, typ)
		v["interfaces"] = interfacesValue(s, typ)
		v["possibleTypes"] = possibleTypesValue(s, typ)
	case schema.Union:
		v["possibleTypes"] = possibleTypesValue(s, typ)
	case schema.Enum:
		v["enumValues"] = enumValuesValue(typ)
	case schema.InputObject:
		v["inputFields"] = inputFieldsValue(s, typ)
	}
	return v
}

// typeRefValue walks a (possibly List/NonNull-wrapped) type reference into
// the wrapper-chain shape introspection clients expect.
func typeRefValue(s *schema.Schema, t *ast.TypeRef) interface{} {
	if t == nil {
		return nil
	}
	if t.NonNull {
		inner := *t
		inner.NonNull = false
		return map[string]interface{}{
			"__typename": "__Type", "kind": "NON_NULL", "name": nil, "description": nil,
			"fields": nil, "interfaces": nil, "possibleTypes": nil, "enumValues": nil, "inputFields": nil,
			"ofType": typeRefValue(s, &inner),
		}
	}
	if t.List != nil {
		return map[string]interface{}{
			"__typename": "__Type", "kind": "LIST", "name": nil, "description": nil,
			"fields": nil, "interfaces": nil, "possibleTypes": nil, "enumValues": nil, "inputFields": nil,
			"ofType": typeRefValue(s, t.List),
		}
	}
	named := s.Lookup(t.Name)
	if named == nil {
		return map[string]interface{}{
			"__typename": "__Type", "kind": "SCALAR", "name": t.Name, "description": nil,
			"fields": nil, "interfaces": nil, "possibleTypes": nil, "enumValues": nil, "inputFields": nil,
			"ofType": nil,
		}
	}
	return typeValue(s, named)
}

func fieldsValue(s *schema.Schema, typ *schema.Type) []interface{} {
	out := []interface{}{}
	for _, name := range typ.FieldOrder {
		if strings.HasPrefix(name, "__") {
			continue
		}
		f := typ.Fields[name]
		out = append(out, map[string]interface{}{
			"__typename":        "__Field",
			"name":              f.Name,
			"description":       nilIfEmpty(f.Description),
			"args":              argsValue(s, f.Args),
			"type":              typeRefValue(s, f.Type),
			"isDeprecated":      f.IsDeprecated,
			"deprecationReason": nilIfEmpty(f.DeprecationReason),
		})
	}
	return out
}

func argsValue(s *schema.Schema, args []*schema.Argument) []interface{} {
	out := []interface{}{}
	for _, a := range args {
		out = append(out, map[string]interface{}{
			"__typename":   "__InputValue",
			"name":         a.Name,
			"description":  nilIfEmpty(a.Description),
			"type":         typeRefValue(s, a.Type),
			"defaultValue": defaultValueString(a.Default),
		})
	}
	return out
}

func inputFieldsValue(s *schema.Schema, typ *schema.Type) []interface{} {
	out := []interface{}{}
	for _, name := range typ.FieldOrder {
		arg, ok := typ.InputFields[name]
		if !ok {
			continue
		}
		out = append(out, map[string]interface{}{
			"__typename":   "__InputValue",
			"name":         arg.Name,
			"description":  nil,
			"type":         typeRefValue(s, arg.Type),
			"defaultValue": defaultValueString(arg.Default),
		})
	}
	return out
}

func enumValuesValue(typ *schema.Type) []interface{} {
	out := []interface{}{}
	for _, v := range typ.EnumValues {
		out = append(out, map[string]interface{}{
			"__typename":        "__EnumValue",
			"name":              v.Name,
			"description":       nil,
			"isDeprecated":      v.IsDeprecated,
			"deprecationReason": nilIfEmpty(v.DeprecationReason),
		})
	}
	return out
}

func interfacesValue(s *schema.Schema, typ *schema.Type) []interface{} {
	out := []interface{}{}
	for _, name := range typ.Interfaces {
		if it := s.Lookup(name); it != nil {
			out = append(out, typeValue(s, it))
		}
	}
	return out
}

func possibleTypesValue(s *schema.Schema, typ *schema.Type) []interface{} {
	out := []interface{}{}
	for _, name := range typ.PossibleTypes {
		if pt := s.Lookup(name); pt != nil {
			out = append(out, typeValue(s, pt))
		}
	}
	return out
}

func defaultValueString(v *ast.Value) interface{} {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case ast.StringValue:
		return fmt.Sprintf("%q", v.Raw)
	case ast.IntValue, ast.FloatValue, ast.EnumValue:
		return fmt.Sprintf("%v", v.Raw)
	case ast.BooleanValue:
		return fmt.Sprintf("%v", v.Raw)
	case ast.NullValue:
		return "null"
	default:
		return nil
	}
}

func directivesValue() []interface{} {
	boolType := map[string]interface{}{
		"__typename": "__Type", "kind": "NON_NULL", "name": nil,
		"ofType": map[string]interface{}{"__typename": "__Type", "kind": "SCALAR", "name": "Boolean"},
	}
	ifArg := map[string]interface{}{
		"__typename": "__InputValue", "name": "if", "description": nil, "type": boolType, "defaultValue": nil,
	}
	return []interface{}{
		map[string]interface{}{
			"__typename": "__Directive", "name": "skip",
			"description": "Skips this field or fragment when the `if` argument is true.",
			"locations":   []interface{}{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
			"args":        []interface{}{ifArg},
		},
		map[string]interface{}{
			"__typename": "__Directive", "name": "include",
			"description": "Includes this field or fragment only when the `if` argument is true.",
			"locations":   []interface{}{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
			"args":        []interface{}{ifArg},
		},
		map[string]interface{}{
			"__typename": "__Directive", "name": "deprecated",
			"description": "Marks a field or enum value as deprecated.",
			"locations":   []interface{}{"FIELD_DEFINITION", "ENUM_VALUE"},
			"args":        []interface{}{},
		},
	}
}

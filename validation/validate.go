// Package validation implements the request-validation rules of spec.md
// §4.2: a fixed set of independent checks run over a parsed executable
// document before the planner ever sees it. Grounded on
// qktrzrj-graphql/internal/validation/validate.go's context/accumulate-errors
// shape, adapted to the gateway's own ast and schema packages and trimmed to
// the rule set the spec names.
package validation

import (
	"fmt"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/schema"
)

// context accumulates errors across the whole document, mirroring the
// teacher's single mutable context threaded through every rule function
// instead of returning partial results from each one.
type context struct {
	schema    *schema.Schema
	doc       *ast.Document
	variables map[string]interface{}
	errs      []*ast.Error

	fragmentUsed map[string]bool
}

func (c *context) addErr(loc ast.Location, rule, format string, a ...interface{}) {
	c.errs = append(c.errs, &ast.Error{
		Message:   fmt.Sprintf(format, a...),
		Locations: []ast.Location{loc},
		Rule:      rule,
	})
}

// Validate runs every rule in spec.md §4.2 over doc and returns the
// accumulated errors (nil if the document is valid). The planner must not
// build a plan when this returns any errors (spec.md §4.3).
func Validate(s *schema.Schema, doc *ast.Document, variables map[string]interface{}) []*ast.Error {
	c := &context{schema: s, doc: doc, variables: variables, fragmentUsed: map[string]bool{}}

	validateOperationNames(c)
	validateLoneAnonymousOperation(c)
	validateSubscriptionSingleRootField(c)
	validateFragmentDefinitionsKnownTypeAndUsed(c)
	before := len(c.errs)
	validateNoFragmentCycles(c)
	if len(c.errs) > before {
		// Descending into a cyclic spread never terminates, so operations
		// are not walked once a fragment cycle has been reported.
		return c.errs
	}

	for _, op := range doc.Operations {
		c.validateOperation(op)
	}

	return c.errs
}

func validateOperationNames(c *context) {
	seen := map[string]ast.Location{}
	for _, op := range c.doc.Operations {
		if op.Name == "" {
			continue
		}
		if loc, ok := seen[op.Name]; ok {
			c.addErr(loc, "UniqueOperationNames", "There can be only one operation named %q.", op.Name)
			c.addErr(op.Loc, "UniqueOperationNames", "There can be only one operation named %q.", op.Name)
			continue
		}
		seen[op.Name] = op.Loc
	}
}

func validateLoneAnonymousOperation(c *context) {
	if len(c.doc.Operations) <= 1 {
		return
	}
	for _, op := range c.doc.Operations {
		if op.Name == "" {
			c.addErr(op.Loc, "LoneAnonymousOperation", "This anonymous operation must be the only defined operation.")
		}
	}
}

func validateSubscriptionSingleRootField(c *context) {
	for _, op := range c.doc.Operations {
		if op.Kind != ast.Subscription {
			continue
		}
		if len(op.SelectionSet.Selections) != 1 {
			name := op.Name
			if name == "" {
				name = "anonymous"
			}
			c.addErr(op.Loc, "SingleRootField", "Subscription %q must select only one top level field.", name)
		}
	}
}

// validateFragmentDefinitionsKnownTypeAndUsed checks each named fragment
// conditions on a known composite type, and (NoUnusedFragments) that every
// fragment is reachable from some operation's selection set.
func validateFragmentDefinitionsKnownTypeAndUsed(c *context) {
	for _, frag := range c.doc.Fragments {
		typ := c.schema.Lookup(frag.TypeCondition)
		if typ == nil {
			c.addErr(frag.Loc, "KnownTypeNames", "Unknown type %q.", frag.TypeCondition)
			continue
		}
		if !isCompositeKind(typ.Kind) {
			c.addErr(frag.Loc, "FragmentsOnCompositeTypes", "Fragment %q cannot condition on non composite type %q.", frag.Name, frag.TypeCondition)
		}
	}

	used := map[string]bool{}
	var markSelectionSet func(ss *ast.SelectionSet)
	markSelectionSet = func(ss *ast.SelectionSet) {
		if ss == nil {
			return
		}
		for _, sel := range ss.Selections {
			if sel.FragmentSpread != "" {
				if !used[sel.FragmentSpread] {
					used[sel.FragmentSpread] = true
					if frag, ok := c.doc.Fragments[sel.FragmentSpread]; ok {
						markSelectionSet(frag.SelectionSet)
					}
				}
				continue
			}
			markSelectionSet(sel.SelectionSet)
		}
	}
	for _, op := range c.doc.Operations {
		markSelectionSet(op.SelectionSet)
	}
	for name, frag := range c.doc.Fragments {
		if !used[name] {
			c.addErr(frag.Loc, "NoUnusedFragments", "Fragment %q is never used.", name)
		}
	}
	c.fragmentUsed = used
}

// validateNoFragmentCycles walks each fragment's spread graph looking for a
// path back to itself.
func validateNoFragmentCycles(c *context) {
	visited := map[string]bool{}
	var visit func(name string, path []string) bool
	visit = func(name string, path []string) bool {
		for _, p := range path {
			if p == name {
				return true
			}
		}
		if visited[name] {
			return false
		}
		frag, ok := c.doc.Fragments[name]
		if !ok {
			return false
		}
		path = append(path, name)
		cyc := false
		var scan func(ss *ast.SelectionSet)
		scan = func(ss *ast.SelectionSet) {
			if ss == nil || cyc {
				return
			}
			for _, sel := range ss.Selections {
				if sel.FragmentSpread != "" {
					if visit(sel.FragmentSpread, path) {
						cyc = true
						return
					}
					continue
				}
				scan(sel.SelectionSet)
			}
		}
		scan(frag.SelectionSet)
		visited[name] = true
		return cyc
	}
	for name, frag := range c.doc.Fragments {
		if visit(name, nil) {
			c.addErr(frag.Loc, "NoFragmentCycles", "Cannot spread fragment %q within itself.", name)
		}
	}
}

func (c *context) validateOperation(op *ast.OperationDefinition) {
	rootName := c.schema.RootTypeName(op.Kind)
	rootType := c.schema.Lookup(rootName)
	if rootType == nil {
		c.addErr(op.Loc, "RootOperationTypeExists", "Schema does not define the %q root type.", op.Kind)
		return
	}

	varNames := map[string]ast.Location{}
	declared := map[string]*ast.VariableDefinition{}
	for _, v := range op.VariableDefinitions {
		if loc, ok := varNames[v.Name]; ok {
			c.addErr(loc, "UniqueVariableNames", "There can be only one variable named \"$%s\".", v.Name)
			c.addErr(v.Loc, "UniqueVariableNames", "There can be only one variable named \"$%s\".", v.Name)
		} else {
			varNames[v.Name] = v.Loc
		}
		declared[v.Name] = v

		if !isInputKind(c.resolveKind(v.Type)) {
			c.addErr(v.Loc, "VariablesAreInputTypes", "Variable \"$%s\" cannot be non-input type %q.", v.Name, v.Type.String())
		}
	}

	used := map[string]bool{}
	c.validateDirectives(op.Directives, directiveLocForOperation(op.Kind))
	c.validateSelectionSet(op.SelectionSet, rootType, declared, used)

	for name, v := range declared {
		if !used[name] {
			c.addErr(v.Loc, "NoUnusedVariables", "Variable \"$%s\" is never used.", name)
		}
	}
}

func (c *context) resolveKind(t *ast.TypeRef) schema.Kind {
	typ := c.schema.Lookup(t.NamedType())
	if typ == nil {
		// Built-in scalars are not part of the composed type map.
		switch t.NamedType() {
		case "Int", "Float", "String", "Boolean", "ID":
			return schema.Scalar
		}
		return ""
	}
	return typ.Kind
}

func isInputKind(k schema.Kind) bool {
	switch k {
	case schema.Scalar, schema.Enum, schema.InputObject:
		return true
	default:
		return false
	}
}

func isCompositeKind(k schema.Kind) bool {
	switch k {
	case schema.Object, schema.Interface, schema.Union:
		return true
	default:
		return false
	}
}

func directiveLocForOperation(kind ast.OperationKind) string {
	switch kind {
	case ast.Query:
		return "QUERY"
	case ast.Mutation:
		return "MUTATION"
	case ast.Subscription:
		return "SUBSCRIPTION"
	}
	return ""
}

var builtinDirectives = map[string][]string{
	"skip":       {"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	"include":    {"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	"deprecated": {"FIELD_DEFINITION", "ENUM_VALUE"},
}

func (c *context) validateDirectives(dirs []ast.Directive, loc string) {
	seen := map[string]bool{}
	for _, d := range dirs {
		if seen[d.Name] {
			c.addErr(d.Loc, "UniqueDirectivesPerLocation", "The directive %q can only be used once at this location.", "@"+d.Name)
			continue
		}
		seen[d.Name] = true

		locs, ok := builtinDirectives[d.Name]
		if !ok {
			c.addErr(d.Loc, "KnownDirectives", "Unknown directive %q.", "@"+d.Name)
			continue
		}
		allowed := false
		for _, l := range locs {
			if l == loc {
				allowed = true
				break
			}
		}
		if !allowed {
			c.addErr(d.Loc, "KnownDirectives", "Directive %q may not be used on %s.", "@"+d.Name, loc)
		}

		if d.Name == "skip" || d.Name == "include" {
			if arg, ok := d.Args["if"]; !ok || (arg.Kind != ast.BooleanValue && arg.Kind != ast.VariableValue) {
				c.addErr(d.Loc, "ProvidedNonNullArguments", "Directive %q argument %q of type \"Boolean!\" is required but not provided.", "@"+d.Name, "if")
			}
		}
	}
}

// validateSelectionSet is the core recursive rule, covering
// FieldsOnCorrectType, KnownArgumentNames, UniqueArgumentNames,
// ArgumentsOfCorrectType/ProvidedNonNullArguments, ScalarLeafs,
// PossibleFragmentSpreads, KnownFragmentNames, and
// OverlappingFieldsCanBeMerged (approximated by response-key/type checks).
func (c *context) validateSelectionSet(ss *ast.SelectionSet, parent *schema.Type, declared map[string]*ast.VariableDefinition, used map[string]bool) {
	if ss == nil {
		return
	}

	responseTypes := map[string]*ast.TypeRef{}

	for _, sel := range ss.Selections {
		for _, d := range sel.Directives {
			for _, v := range d.Args {
				markVariables(v, used)
			}
		}
		switch {
		case sel.FragmentSpread != "":
			c.validateDirectives(sel.Directives, "FRAGMENT_SPREAD")
			frag, ok := c.doc.Fragments[sel.FragmentSpread]
			if !ok {
				c.addErr(sel.Loc, "KnownFragmentNames", "Unknown fragment %q.", sel.FragmentSpread)
				continue
			}
			fragType := c.schema.Lookup(frag.TypeCondition)
			if !compatible(parent, fragType, c.schema) {
				c.addErr(sel.Loc, "PossibleFragmentSpreads", "Fragment %q cannot be spread here as objects of type %q can never be of type %q.", sel.FragmentSpread, parent.Name, frag.TypeCondition)
			}
			c.validateVariableUsagesInSelectionSet(frag.SelectionSet, declared, used)
			c.validateSelectionSet(frag.SelectionSet, fragType, declared, used)

		case sel.InlineFragment:
			c.validateDirectives(sel.Directives, "INLINE_FRAGMENT")
			target := parent
			if sel.TypeCondition != "" {
				target = c.schema.Lookup(sel.TypeCondition)
				if target == nil {
					c.addErr(sel.Loc, "KnownTypeNames", "Unknown type %q.", sel.TypeCondition)
					continue
				}
				if !isCompositeKind(target.Kind) {
					c.addErr(sel.Loc, "FragmentsOnCompositeTypes", "Fragment cannot condition on non composite type %q.", sel.TypeCondition)
					continue
				}
				if !compatible(parent, target, c.schema) {
					c.addErr(sel.Loc, "PossibleFragmentSpreads", "Fragment cannot be spread here as objects of type %q can never be of type %q.", parent.Name, sel.TypeCondition)
				}
			}
			c.validateSelectionSet(sel.SelectionSet, target, declared, used)

		default:
			c.validateFieldSelection(sel, parent, declared, used, responseTypes)
		}
	}
}

func (c *context) validateFieldSelection(sel *ast.Selection, parent *schema.Type, declared map[string]*ast.VariableDefinition, used map[string]bool, responseTypes map[string]*ast.TypeRef) {
	c.validateDirectives(sel.Directives, "FIELD")

	if sel.Name == "__typename" {
		return
	}

	var field *schema.Field
	if sel.Name == "__schema" || sel.Name == "__type" {
		field = parent.Fields[sel.Name]
	} else if parent != nil {
		field = parent.Fields[sel.Name]
	}
	if field == nil {
		parentName := "<unknown>"
		if parent != nil {
			parentName = parent.Name
		}
		c.addErr(sel.Loc, "FieldsOnCorrectType", "Cannot query field %q on type %q.", sel.Name, parentName)
		return
	}

	if prev, ok := responseTypes[sel.ResponseKey()]; ok {
		if prev.String() != field.Type.String() {
			c.addErr(sel.Loc, "OverlappingFieldsCanBeMerged", "Fields %q conflict because they return conflicting types %s and %s.", sel.ResponseKey(), prev.String(), field.Type.String())
		}
	} else {
		responseTypes[sel.ResponseKey()] = field.Type
	}

	argNames := map[string]bool{}
	for name, val := range sel.Args {
		if argNames[name] {
			c.addErr(sel.Loc, "UniqueArgumentNames", "There can be only one argument named %q.", name)
		}
		argNames[name] = true

		arg := argByName(field.Args, name)
		if arg == nil {
			c.addErr(sel.Loc, "KnownArgumentNames", "Unknown argument %q on field %q.", name, sel.Name)
			continue
		}
		c.validateVariableUsage(val, arg.Type, declared, used)
	}
	for _, arg := range field.Args {
		if schema.IsNonNull(arg.Type) && arg.Default == nil {
			if _, ok := sel.Args[arg.Name]; !ok {
				c.addErr(sel.Loc, "ProvidedNonNullArguments", "Field %q argument %q of type %q is required but not provided.", sel.Name, arg.Name, arg.Type.String())
			}
		}
	}

	leaf := isLeafType(c.schema, field.Type)
	hasSubSelections := sel.SelectionSet != nil && len(sel.SelectionSet.Selections) > 0
	if leaf && hasSubSelections {
		c.addErr(sel.Loc, "ScalarLeafs", "Field %q must not have a selection since type %q has no subfields.", sel.Name, field.Type.String())
	}
	if !leaf && !hasSubSelections {
		c.addErr(sel.Loc, "ScalarLeafs", "Field %q of type %q must have a selection of subfields.", sel.Name, field.Type.String())
	}

	if hasSubSelections {
		fieldType := c.schema.Lookup(schema.NamedType(field.Type))
		c.validateSelectionSet(sel.SelectionSet, fieldType, declared, used)
	}
}

// validateVariableUsagesInSelectionSet walks a fragment's selections purely
// to mark variable usages (NoUndefinedVariables / VariablesInAllowedPosition
// / NoUnusedVariables), without re-running field existence checks, which
// happen when validateSelectionSet descends into the same tree.
func (c *context) validateVariableUsagesInSelectionSet(ss *ast.SelectionSet, declared map[string]*ast.VariableDefinition, used map[string]bool) {
	if ss == nil {
		return
	}
	for _, sel := range ss.Selections {
		for _, v := range sel.Args {
			markVariables(v, used)
		}
		c.validateVariableUsagesInSelectionSet(sel.SelectionSet, declared, used)
	}
}

func markVariables(v *ast.Value, used map[string]bool) {
	if v == nil {
		return
	}
	switch v.Kind {
	case ast.VariableValue:
		used[v.Variable] = true
	case ast.ListValue:
		for _, item := range v.List {
			markVariables(item, used)
		}
	case ast.ObjectValue:
		for _, item := range v.Object {
			markVariables(item, used)
		}
	}
}

// validateVariableUsage covers NoUndefinedVariables and
// VariablesInAllowedPosition for a single argument value.
func (c *context) validateVariableUsage(v *ast.Value, argType *ast.TypeRef, declared map[string]*ast.VariableDefinition, used map[string]bool) {
	if v == nil {
		return
	}
	switch v.Kind {
	case ast.VariableValue:
		used[v.Variable] = true
		def, ok := declared[v.Variable]
		if !ok {
			c.addErr(v.Loc, "NoUndefinedVariables", "Variable \"$%s\" is not defined.", v.Variable)
			return
		}
		if !typeCanBeUsedAs(def.Type, def.Default != nil, argType) {
			c.addErr(v.Loc, "VariablesInAllowedPosition", "Variable \"$%s\" of type %q used in position expecting type %q.", v.Variable, def.Type.String(), argType.String())
		}
	case ast.ListValue:
		elemType := argType
		if argType.List != nil {
			elemType = argType.List
		}
		for _, item := range v.List {
			c.validateVariableUsage(item, elemType, declared, used)
		}
	case ast.ObjectValue:
		c.validateInputObjectLiteral(v, argType, declared, used)
	case ast.NullValue:
		if schema.IsNonNull(argType) {
			c.addErr(v.Loc, "ArgumentsOfCorrectType", "Expected value of type %q, found null.", argType.String())
		}
	case ast.EnumValue:
		c.validateEnumLiteral(v, argType)
	case ast.IntValue, ast.FloatValue, ast.StringValue, ast.BooleanValue:
		c.validateScalarLiteral(v, argType)
	}
}

// validateInputObjectLiteral covers ArgumentsOfCorrectType for an object
// literal: every key must name a declared input field (checked against the
// schema's type graph, spec.md §4.2), and every required field (NonNull,
// no default) must be present. Field values recurse through
// validateVariableUsage so nested variables are still marked used.
func (c *context) validateInputObjectLiteral(v *ast.Value, argType *ast.TypeRef, declared map[string]*ast.VariableDefinition, used map[string]bool) {
	named := c.schema.Lookup(schema.NamedType(argType))
	if named == nil || named.Kind != schema.InputObject {
		c.addErr(v.Loc, "ArgumentsOfCorrectType", "Expected value of type %q, found an object.", argType.String())
		return
	}
	for name, val := range v.Object {
		field, ok := named.InputFields[name]
		if !ok {
			c.addErr(val.Loc, "ArgumentsOfCorrectType", "Field %q is not defined by type %q.", name, named.Name)
			continue
		}
		c.validateVariableUsage(val, field.Type, declared, used)
	}
	for name, field := range named.InputFields {
		if schema.IsNonNull(field.Type) && field.Default == nil {
			if _, ok := v.Object[name]; !ok {
				c.addErr(v.Loc, "ArgumentsOfCorrectType", "Field %q of required type %q was not provided.", name, field.Type.String())
			}
		}
	}
}

// validateEnumLiteral checks an EnumValue literal names a declared member
// of the argument's enum type (spec.md §4.2's "enum-by-string acceptance
// for input objects" extends to bare enum arguments the same way).
func (c *context) validateEnumLiteral(v *ast.Value, argType *ast.TypeRef) {
	named := c.schema.Lookup(schema.NamedType(argType))
	if named == nil || named.Kind != schema.Enum {
		c.addErr(v.Loc, "ArgumentsOfCorrectType", "Expected value of type %q, found enum value %q.", argType.String(), v.Raw)
		return
	}
	name, _ := v.Raw.(string)
	for _, ev := range named.EnumValues {
		if ev.Name == name {
			return
		}
	}
	c.addErr(v.Loc, "ArgumentsOfCorrectType", "Value %q does not exist in %q enum.", name, named.Name)
}

// validateScalarLiteral checks a scalar literal's kind matches the argument's
// declared built-in scalar, per spec.md §4.2's arguments-of-correct-type
// rule. Custom (non-built-in) scalars accept any literal shape, since the
// schema carries no coercion function to check against.
func (c *context) validateScalarLiteral(v *ast.Value, argType *ast.TypeRef) {
	name := schema.NamedType(argType)
	named := c.schema.Lookup(name)
	if named != nil && named.Kind != schema.Scalar {
		c.addErr(v.Loc, "ArgumentsOfCorrectType", "Expected value of type %q, found a literal %s.", argType.String(), scalarLiteralKind(v.Kind))
		return
	}
	// Built-in scalars are matched by name: they are not part of the
	// composed type map, so named is nil for them.
	ok := true
	switch name {
	case "Int":
		ok = v.Kind == ast.IntValue
	case "Float":
		ok = v.Kind == ast.IntValue || v.Kind == ast.FloatValue
	case "String":
		ok = v.Kind == ast.StringValue
	case "Boolean":
		ok = v.Kind == ast.BooleanValue
	case "ID":
		ok = v.Kind == ast.StringValue || v.Kind == ast.IntValue
	}
	if !ok {
		c.addErr(v.Loc, "ArgumentsOfCorrectType", "Expected value of type %q, found %s.", argType.String(), scalarLiteralKind(v.Kind))
	}
}

func scalarLiteralKind(k ast.ValueKind) string {
	switch k {
	case ast.IntValue:
		return "an integer"
	case ast.FloatValue:
		return "a float"
	case ast.StringValue:
		return "a string"
	case ast.BooleanValue:
		return "a boolean"
	default:
		return "a value"
	}
}

func typeCanBeUsedAs(varType *ast.TypeRef, hasDefault bool, locType *ast.TypeRef) bool {
	if locType.NonNull && !varType.NonNull && !hasDefault {
		return false
	}
	a, b := varType, locType
	for a.List != nil || b.List != nil {
		if (a.List == nil) != (b.List == nil) {
			return false
		}
		a, b = a.List, b.List
	}
	return a.Name == b.Name
}

func argByName(args []*schema.Argument, name string) *schema.Argument {
	for _, a := range args {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func isLeafType(s *schema.Schema, t *ast.TypeRef) bool {
	named := s.Lookup(schema.NamedType(t))
	if named == nil {
		return true
	}
	return named.Kind == schema.Scalar || named.Kind == schema.Enum
}

// compatible reports whether an object of type b could ever also be of
// type a, i.e. whether a's possible concrete types intersect b's.
func compatible(a, b *schema.Type, s *schema.Schema) bool {
	if a == nil || b == nil {
		return true
	}
	pa := possibleTypeNames(a)
	pb := possibleTypeNames(b)
	for _, x := range pa {
		for _, y := range pb {
			if x == y {
				return true
			}
		}
	}
	return false
}

func possibleTypeNames(t *schema.Type) []string {
	switch t.Kind {
	case schema.Object:
		return []string{t.Name}
	case schema.Interface, schema.Union:
		return t.PossibleTypes
	default:
		return nil
	}
}

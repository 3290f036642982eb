package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/schema"
	"github.com/gqlfederate/gateway/validation"
)

// Result is what Plan returns for one operation: either a query/mutation
// plan tree, or a subscription plan. Exactly one of the two is set.
type Result struct {
	Root      *Node
	Subscribe *SubscribePlan
}

// groupKey identifies one fetch-entity group: the service that must resolve
// it, the response path leading to the parent object, and the parent type's
// name (spec.md §4.3 "Entity loop").
type groupKey struct {
	service  string
	pathKey  string
	typeName string
}

// groupState accumulates the fields routed to one entity group until the
// entity loop processes it.
type groupState struct {
	prefix   int
	service  string
	typeName string
	path     []PathSegment
	fields   []*ast.Selection
}

type builder struct {
	schema *schema.Schema
	doc    *ast.Document

	nextPrefix int
	usedVars   map[string]bool // variables referenced by the sub-request currently being built

	// groups accumulates cross-service fetch-entity groups discovered while
	// planning the current sub-request's selection set. groupOrder records
	// their discovery order (the order required-ref injections first
	// appeared). groupsSnapshot holds the previous layer's groups once
	// takeGroups has drained them, keyed for planEntityFetch lookups.
	groups         map[groupKey]*groupState
	groupOrder     []groupKey
	groupsSnapshot map[groupKey]*groupState
}

// Plan validates doc and, if valid, compiles the named operation into a
// plan tree (spec.md §4.3). Validation errors short-circuit planning
// entirely, per §4.3 "Failure semantics".
func Plan(s *schema.Schema, doc *ast.Document, operationName string, variables map[string]interface{}) (*Result, []*ast.Error) {
	if errs := validation.Validate(s, doc, variables); len(errs) > 0 {
		return nil, errs
	}

	op, err := doc.OperationByName(operationName)
	if err != nil {
		return nil, []*ast.Error{ast.Errorf("%s", err.Error())}
	}

	rootName := s.RootTypeName(op.Kind)
	rootType := s.Lookup(rootName)
	if rootType == nil {
		return nil, []*ast.Error{ast.Errorf("schema has no root type for %s", op.Kind)}
	}

	normalized := normalizeSelectionSet(doc, op.SelectionSet)

	switch op.Kind {
	case ast.Subscription:
		// §4.3: exactly one root field is guaranteed by validation's
		// SingleRootField rule.
		sp, errs := buildSubscribePlan(s, doc, rootType, normalized, op.VariableDefinitions)
		if errs != nil {
			return nil, errs
		}
		return &Result{Subscribe: sp}, nil

	case ast.Mutation:
		root, errs := buildMutationPlan(s, doc, rootType, normalized, op.VariableDefinitions)
		if errs != nil {
			return nil, errs
		}
		return &Result{Root: flattenNode(root)}, nil

	default:
		root, errs := buildQueryPlan(s, doc, rootType, normalized, op.VariableDefinitions)
		if errs != nil {
			return nil, errs
		}
		return &Result{Root: flattenNode(root)}, nil
	}
}

// rootFieldPlacement buckets each top-level selection into either an
// introspection node or the service whose sub-request it belongs to,
// preserving the client's declared order (needed for mutation sequencing).
type rootFieldPlacement struct {
	service       string // "" for introspection fields
	selection     *ast.Selection
	introspection bool
}

func placeRootFields(s *schema.Schema, rootType *schema.Type, ss *ast.SelectionSet) []rootFieldPlacement {
	var out []rootFieldPlacement
	for _, sel := range ss.Selections {
		if sel.Name == "__schema" || sel.Name == "__type" {
			out = append(out, rootFieldPlacement{selection: sel, introspection: true})
			continue
		}
		field := rootType.Fields[sel.Name]
		var service string
		if field != nil {
			service = schema.FieldOwner(rootType, field)
		}
		out = append(out, rootFieldPlacement{service: service, selection: sel})
	}
	return out
}

// buildQueryPlan builds the insertion-ordered per-service root group for a
// query or subscription's (non-subscribe) root selection, running every
// service's fetch in Parallel, per spec.md §4.3.
func buildQueryPlan(s *schema.Schema, doc *ast.Document, rootType *schema.Type, ss *ast.SelectionSet, varDefs []*ast.VariableDefinition) (*Node, []*ast.Error) {
	placements := placeRootFields(s, rootType, ss)

	var order []string
	bySvc := map[string][]*ast.Selection{}
	var introspectionNodes []*Node

	for _, p := range placements {
		if p.introspection {
			introspectionNodes = append(introspectionNodes, &Node{Kind: Introspection, Selection: p.selection})
			continue
		}
		if _, ok := bySvc[p.service]; !ok {
			order = append(order, p.service)
		}
		bySvc[p.service] = append(bySvc[p.service], p.selection)
	}

	var children []*Node
	for _, n := range introspectionNodes {
		children = append(children, n)
	}

	layers, errs := runEntityLoop(s, doc, rootType, bySvc, order, ast.Query, varDefs)
	if errs != nil {
		return nil, errs
	}
	children = append(children, layers...)

	return &Node{Kind: Parallel, Children: children}, nil
}

// buildMutationPlan preserves client order between different-service
// selections, fusing only consecutive same-service selections, per spec.md
// §4.3 "Mutation ordering".
func buildMutationPlan(s *schema.Schema, doc *ast.Document, rootType *schema.Type, ss *ast.SelectionSet, varDefs []*ast.VariableDefinition) (*Node, []*ast.Error) {
	placements := placeRootFields(s, rootType, ss)

	type fused struct {
		service    string
		selections []*ast.Selection
	}
	var groupsInOrder []fused
	var introspectionSteps []*Node

	for _, p := range placements {
		if p.introspection {
			introspectionSteps = append(introspectionSteps, &Node{Kind: Introspection, Selection: p.selection})
			continue
		}
		if n := len(groupsInOrder); n > 0 && groupsInOrder[n-1].service == p.service {
			groupsInOrder[n-1].selections = append(groupsInOrder[n-1].selections, p.selection)
			continue
		}
		groupsInOrder = append(groupsInOrder, fused{service: p.service, selections: []*ast.Selection{p.selection}})
	}

	var sequence []*Node
	sequence = append(sequence, introspectionSteps...)
	for _, g := range groupsInOrder {
		b := newBuilder(s, doc)
		planned := b.planObjectSelectionSet(rootType, &ast.SelectionSet{Selections: g.selections}, g.service, nil)
		node := &Node{Kind: Fetch, Service: g.service, Variables: b.sortedUsedVars()}
		node.QueryText = renderDocument(ast.Mutation, filterVarDefs(varDefs, node.Variables), &ast.SelectionSet{Selections: planned})

		entityLayers, errs := b.runEntityLoopOnce()
		if errs != nil {
			return nil, errs
		}
		seq := &Node{Kind: Sequence, Children: append([]*Node{node}, entityLayers...)}
		sequence = append(sequence, seq)
	}

	return &Node{Kind: Sequence, Children: sequence}, nil
}

// buildSubscribePlan builds one subscribe fetch per the single root field,
// with any remaining cross-service fields compiled into a post-event plan
// tree applied to each emission (spec.md §3 "Subscribe plan").
func buildSubscribePlan(s *schema.Schema, doc *ast.Document, rootType *schema.Type, ss *ast.SelectionSet, varDefs []*ast.VariableDefinition) (*SubscribePlan, []*ast.Error) {
	if len(ss.Selections) != 1 {
		return nil, []*ast.Error{ast.Errorf("subscription must select exactly one top level field")}
	}
	sel := ss.Selections[0]
	field := rootType.Fields[sel.Name]
	if field == nil {
		return nil, []*ast.Error{ast.Errorf("unknown subscription field %q", sel.Name)}
	}
	service := schema.FieldOwner(rootType, field)

	b := newBuilder(s, doc)
	planned := b.planField(rootType, sel, service, nil)
	fetch := &SubscribeFetch{Service: service}
	fetch.QueryText = renderDocument(ast.Subscription, filterVarDefs(varDefs, b.sortedUsedVars()), &ast.SelectionSet{Selections: planned})
	fetch.Variables = b.sortedUsedVars()

	layers, errs := b.runEntityLoopOnce()
	if errs != nil {
		return nil, errs
	}
	var post *Node
	if len(layers) > 0 {
		post = flattenNode(&Node{Kind: Sequence, Children: layers})
	}

	return &SubscribePlan{Fetches: []*SubscribeFetch{fetch}, PostEvent: post}, nil
}

func newBuilder(s *schema.Schema, doc *ast.Document) *builder {
	return &builder{schema: s, doc: doc, usedVars: map[string]bool{}}
}

func (b *builder) sortedUsedVars() []string {
	out := make([]string, 0, len(b.usedVars))
	for v := range b.usedVars {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func filterVarDefs(all []*ast.VariableDefinition, used []string) []*ast.VariableDefinition {
	usedSet := map[string]bool{}
	for _, v := range used {
		usedSet[v] = true
	}
	var out []*ast.VariableDefinition
	for _, v := range all {
		if usedSet[v.Name] {
			out = append(out, v)
		}
	}
	return out
}

// runEntityLoop drives the per-service root groups through one round of
// local planning and then the entity loop for cross-service fields it
// discovers, building one Fetch node per service plus the resulting Flatten
// layers (spec.md §4.3 "Entity loop").
func runEntityLoop(s *schema.Schema, doc *ast.Document, rootType *schema.Type, bySvc map[string][]*ast.Selection, order []string, opKind ast.OperationKind, varDefs []*ast.VariableDefinition) ([]*Node, []*ast.Error) {
	var nodes []*Node
	for _, svc := range order {
		b := newBuilder(s, doc)
		planned := b.planObjectSelectionSet(rootType, &ast.SelectionSet{Selections: bySvc[svc]}, svc, nil)
		fetch := &Node{Kind: Fetch, Service: svc, Variables: b.sortedUsedVars()}
		fetch.QueryText = renderDocument(opKind, filterVarDefs(varDefs, fetch.Variables), &ast.SelectionSet{Selections: planned})

		layers, errs := b.runEntityLoopOnce()
		if errs != nil {
			return nil, errs
		}
		if len(layers) == 0 {
			nodes = append(nodes, fetch)
			continue
		}
		nodes = append(nodes, &Node{Kind: Sequence, Children: append([]*Node{fetch}, layers...)})
	}
	return nodes, nil
}

// runEntityLoopOnce drains this builder's accumulated groups layer by
// layer. Each layer's Flatten nodes are siblings under Parallel; successive
// layers nest as Sequence children, per §4.3's "layers run sequentially"
// termination argument.
func (b *builder) runEntityLoopOnce() ([]*Node, []*ast.Error) {
	var layers []*Node
	pending := b.takeGroups()
	for len(pending) > 0 {
		var layerNodes []*Node
		next := map[groupKey]*groupState{}
		nextOrder := []groupKey{}

		for _, key := range pending {
			g := b.groupsSnapshot[key]
			node, errs := b.planEntityFetch(g, next, &nextOrder)
			if errs != nil {
				return nil, errs
			}
			layerNodes = append(layerNodes, node)
		}

		layers = append(layers, &Node{Kind: Parallel, Children: layerNodes})

		b.groupsSnapshot = next
		pending = nextOrder
	}
	return layers, nil
}

// takeGroups snapshots and clears this builder's accumulated groups,
// returning their keys in registration order.
func (b *builder) takeGroups() []groupKey {
	order := b.groupOrder
	b.groupsSnapshot = b.groups
	b.groupOrder = nil
	b.groups = map[groupKey]*groupState{}
	return order
}

func (b *builder) planEntityFetch(g *groupState, next map[groupKey]*groupState, nextOrder *[]groupKey) (*Node, []*ast.Error) {
	sub := newBuilder(b.schema, b.doc)
	sub.groups = next
	sub.groupOrder = *nextOrder
	sub.nextPrefix = b.nextPrefix

	typ := b.schema.Lookup(g.typeName)
	planned := sub.planObjectSelectionSet(typ, &ast.SelectionSet{Selections: g.fields}, g.service, g.path)

	*nextOrder = sub.groupOrder
	b.nextPrefix = sub.nextPrefix

	inlineFrag := &ast.Selection{InlineFragment: true, TypeCondition: g.typeName, SelectionSet: &ast.SelectionSet{Selections: planned}}
	entitiesSel := &ast.Selection{
		Name: "_entities",
		Args: map[string]*ast.Value{"representations": {Kind: ast.VariableValue, Variable: "representations"}},
		SelectionSet: &ast.SelectionSet{Selections: []*ast.Selection{
			{Name: "__typename"},
			inlineFrag,
		}},
	}

	repVarDef := &ast.VariableDefinition{Name: "representations", Type: &ast.TypeRef{NonNull: true, List: &ast.TypeRef{NonNull: true, Name: "_Any"}}}
	varDefs := append([]*ast.VariableDefinition{repVarDef}, filterVarDefsFromSet(sub.usedVars)...)

	node := &Node{
		Kind:         Flatten,
		Service:      g.service,
		ResponsePath: g.path,
		KeyPrefix:    g.prefix,
		EntityType:   g.typeName,
		Variables:    sub.sortedUsedVars(),
		QueryText:    renderDocument(ast.Query, varDefs, &ast.SelectionSet{Selections: []*ast.Selection{entitiesSel}}),
	}
	return node, nil
}

func filterVarDefsFromSet(used map[string]bool) []*ast.VariableDefinition {
	// The entity sub-request's non-representations variables are declared as
	// `_Any`-typed passthroughs of whatever the original document declared;
	// planEntityFetch only needs their names on the wire since the upstream
	// validates their own schema's variable types independently. A $name
	// placeholder type is sufficient here because the gateway forwards the
	// caller-supplied JSON value, never re-encodes it as a literal.
	names := make([]string, 0, len(used))
	for name := range used {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []*ast.VariableDefinition
	for _, name := range names {
		out = append(out, &ast.VariableDefinition{Name: name, Type: &ast.TypeRef{Name: "_Any"}})
	}
	return out
}

// ensureGroup returns the group for key, creating it (and allocating a new
// prefix) on first use.
func (b *builder) ensureGroup(key groupKey, service, typeName string, path []PathSegment) (*groupState, bool) {
	if b.groups == nil {
		b.groups = map[groupKey]*groupState{}
	}
	if g, ok := b.groups[key]; ok {
		return g, false
	}
	b.nextPrefix++
	g := &groupState{prefix: b.nextPrefix, service: service, typeName: typeName, path: append([]PathSegment{}, path...)}
	b.groups[key] = g
	b.groupOrder = append(b.groupOrder, key)
	return g, true
}

func pathKeyString(path []PathSegment) string {
	var sb strings.Builder
	for _, seg := range path {
		sb.WriteString(seg.Field)
		if seg.IsList {
			sb.WriteString("[]")
		}
		if seg.ConcreteType != "" {
			sb.WriteString(":")
			sb.WriteString(seg.ConcreteType)
		}
		sb.WriteString("/")
	}
	return sb.String()
}

// planObjectSelectionSet plans every selection in ss against a concrete
// object (or interface, for possible-type discrimination) parent type,
// returning the selections to emit into the current sub-request at this
// level.
func (b *builder) planObjectSelectionSet(parentType *schema.Type, ss *ast.SelectionSet, currentService string, path []PathSegment) []*ast.Selection {
	var out []*ast.Selection
	if ss == nil {
		return out
	}
	for _, sel := range ss.Selections {
		if sel.InlineFragment && (sel.TypeCondition == "" || sel.TypeCondition == parentType.Name) {
			out = append(out, b.planObjectSelectionSet(parentType, sel.SelectionSet, currentService, path)...)
			continue
		}
		out = append(out, b.planField(parentType, sel, currentService, path)...)
	}
	return out
}

// planAbstractSelectionSet expands an interface/union position polymorphically:
// one inline fragment per concrete possible type, each recursively planned,
// per spec.md §4.3's "expand polymorphically" rule.
func (b *builder) planAbstractSelectionSet(parentType *schema.Type, ss *ast.SelectionSet, currentService string, path []PathSegment) []*ast.Selection {
	var shared []*ast.Selection // fields selected directly on the interface/union position (e.g. __typename)
	byType := map[string][]*ast.Selection{}

	var walk func(s *ast.SelectionSet)
	walk = func(s *ast.SelectionSet) {
		if s == nil {
			return
		}
		for _, sel := range s.Selections {
			switch {
			case sel.InlineFragment:
				if sel.TypeCondition == "" {
					walk(sel.SelectionSet)
				} else {
					byType[sel.TypeCondition] = append(byType[sel.TypeCondition], sel.SelectionSet.Selections...)
				}
			case sel.Name == "__typename":
				shared = append(shared, sel)
			default:
				// A field declared directly on the interface itself
				// (available on every possible type).
				for _, concreteName := range parentType.PossibleTypes {
					byType[concreteName] = append(byType[concreteName], sel)
				}
			}
		}
	}
	walk(ss)

	var out []*ast.Selection
	out = append(out, shared...)
	for _, concreteName := range parentType.PossibleTypes {
		fields, ok := byType[concreteName]
		if !ok {
			continue
		}
		concreteType := b.schema.Lookup(concreteName)
		if concreteType == nil {
			continue
		}
		childPath := append(append([]PathSegment{}, path...), PathSegment{ConcreteType: concreteName})
		planned := b.planObjectSelectionSet(concreteType, &ast.SelectionSet{Selections: fields}, currentService, childPath)
		out = append(out, &ast.Selection{
			InlineFragment: true,
			TypeCondition:  concreteName,
			SelectionSet:   &ast.SelectionSet{Selections: append([]*ast.Selection{{Name: "__typename"}}, planned...)},
		})
	}
	return out
}

// planField plans one field selection, returning the selection(s) to emit
// at the current level: either the field itself (resolved locally), or —
// the first time a cross-service group is needed — the required-ref
// selections that let the current service's response carry the data the
// next layer's entity fetch needs to re-identify this object.
func (b *builder) planField(parentType *schema.Type, sel *ast.Selection, currentService string, path []PathSegment) []*ast.Selection {
	if sel.Name == "__typename" {
		return []*ast.Selection{sel}
	}

	field, ok := parentType.Fields[sel.Name]
	if !ok {
		return nil
	}

	owner := schema.FieldOwner(parentType, field)
	if owner != "" && owner != currentService {
		// spec.md §4.3: a cross-service field can only be planned into an
		// entity group if the parent type carries a key the owning service
		// can re-identify it by. With no key, there's no way to build a
		// representation for the entity fetch, so the field is dropped.
		if schema.KeyFor(parentType, owner) == nil {
			return nil
		}
		key := groupKey{service: owner, pathKey: pathKeyString(path), typeName: parentType.Name}
		group, isNew := b.ensureGroup(key, owner, parentType.Name, path)
		group.fields = append(group.fields, sel)
		if isNew {
			return b.buildRequiredRefSelections(group, parentType)
		}
		return nil
	}

	b.collectVars(sel)

	if sel.SelectionSet == nil || len(sel.SelectionSet.Selections) == 0 {
		return []*ast.Selection{{Alias: sel.Alias, Name: sel.Name, Args: sel.Args, Directives: sel.Directives, Loc: sel.Loc}}
	}

	childPath := append(append([]PathSegment{}, path...), PathSegment{Field: sel.ResponseKey(), IsList: schema.IsList(field.Type)})
	fieldType := b.schema.Lookup(schema.NamedType(field.Type))

	var children []*ast.Selection
	if fieldType != nil && (fieldType.Kind == schema.Interface || fieldType.Kind == schema.Union) {
		children = b.planAbstractSelectionSet(fieldType, sel.SelectionSet, currentService, childPath)
	} else {
		children = b.planObjectSelectionSet(fieldType, sel.SelectionSet, currentService, childPath)
	}

	return []*ast.Selection{{
		Alias: sel.Alias, Name: sel.Name, Args: sel.Args, Directives: sel.Directives, Loc: sel.Loc,
		SelectionSet: &ast.SelectionSet{Selections: children},
	}}
}

// buildRequiredRefSelections builds the flat, prefix-aliased field list a
// group's required-ref injection emits: the owner's key selection plus the
// union of every grouped field's @requires selection, per spec.md §4.3.
func (b *builder) buildRequiredRefSelections(group *groupState, parentType *schema.Type) []*ast.Selection {
	seen := map[string]bool{}
	var out []*ast.Selection
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, &ast.Selection{Alias: fmt.Sprintf("__key%d_%s", group.prefix, name), Name: name})
	}

	if keySel := schema.KeyFor(parentType, group.service); keySel != nil {
		for _, s := range keySel.Selections {
			add(s.Name)
		}
	}
	for _, fsel := range group.fields {
		if f, ok := parentType.Fields[fsel.Name]; ok && f.Requires != nil {
			for _, s := range f.Requires.Selections {
				add(s.Name)
			}
		}
	}
	add("__typename")
	return out
}

// collectVars records every variable the selection's arguments and
// directives reference, for §4.3's "Variable scoping" rule.
func (b *builder) collectVars(sel *ast.Selection) {
	for _, v := range sel.Args {
		collectVarsFromValue(v, b.usedVars)
	}
	for _, d := range sel.Directives {
		for _, v := range d.Args {
			collectVarsFromValue(v, b.usedVars)
		}
	}
}

func collectVarsFromValue(v *ast.Value, used map[string]bool) {
	if v == nil {
		return
	}
	switch v.Kind {
	case ast.VariableValue:
		used[v.Variable] = true
	case ast.ListValue:
		for _, item := range v.List {
			collectVarsFromValue(item, used)
		}
	case ast.ObjectValue:
		for _, item := range v.Object {
			collectVarsFromValue(item, used)
		}
	}
}

// normalizeSelectionSet inlines every named fragment spread into an inline
// fragment, so every sub-request the planner builds is self-contained and
// never references a fragment defined only in the client's document.
// Grounded on federation/normalize.go's flattening pass, generalized from
// its single-flatten-on-compose-time shape to run recursively over
// arbitrary nesting depth.
func normalizeSelectionSet(doc *ast.Document, ss *ast.SelectionSet) *ast.SelectionSet {
	if ss == nil {
		return nil
	}
	out := &ast.SelectionSet{Loc: ss.Loc}
	for _, sel := range ss.Selections {
		switch {
		case sel.FragmentSpread != "":
			frag, ok := doc.Fragments[sel.FragmentSpread]
			if !ok {
				continue
			}
			out.Selections = append(out.Selections, &ast.Selection{
				InlineFragment: true,
				TypeCondition:  frag.TypeCondition,
				Directives:     sel.Directives,
				SelectionSet:   normalizeSelectionSet(doc, frag.SelectionSet),
				Loc:            sel.Loc,
			})
		case sel.InlineFragment:
			out.Selections = append(out.Selections, &ast.Selection{
				InlineFragment: true,
				TypeCondition:  sel.TypeCondition,
				Directives:     sel.Directives,
				SelectionSet:   normalizeSelectionSet(doc, sel.SelectionSet),
				Loc:            sel.Loc,
			})
		default:
			cp := *sel
			cp.SelectionSet = normalizeSelectionSet(doc, sel.SelectionSet)
			out.Selections = append(out.Selections, &cp)
		}
	}
	return out
}

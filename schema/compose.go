package schema

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/samsarahq/go/oops"

	"github.com/gqlfederate/gateway/ast"
)

// ServiceDocument pairs a subgraph's name with its parsed SDL contribution,
// the composition input named by spec.md §4.1.
type ServiceDocument struct {
	Service string
	Doc     *ast.SDLDocument
}

const (
	queryRoot        = "Query"
	mutationRoot     = "Mutation"
	subscriptionRoot = "Subscription"
)

type builder struct {
	schema      *Schema
	fieldOwner  map[string]map[string]string // type -> field -> service that stamped it
	issues      *multierror.Error
	typeSigSeen map[string]string // non-object type name -> signature of first occurrence
}

// Compose builds a composed Schema from an ordered collection of subgraph
// SDL contributions, per spec.md §4.1's rules. Returns a non-nil error
// (wrapping one or more *CombineIssue) if composition fails; the caller
// must not make the schema available to the planner in that case (spec.md
// §7: SchemaCombineError — "composition aborts; no schema is made
// available").
func Compose(docs []ServiceDocument) (*Schema, error) {
	b := &builder{
		schema: &Schema{
			Types:        map[string]*Type{},
			QueryType:    queryRoot,
			MutationType: mutationRoot,
		},
		fieldOwner:  map[string]map[string]string{},
		typeSigSeen: map[string]string{},
	}

	b.seedRoot(queryRoot)
	b.seedRoot(mutationRoot)
	b.seedRoot(subscriptionRoot)
	b.schema.SubscriptionType = subscriptionRoot

	for _, sd := range docs {
		b.schema.Services = append(b.schema.Services, sd.Service)
		b.ingestService(sd.Service, sd.Doc)
	}

	b.linkInterfaces()
	b.validateKeySelections()
	AddIntrospectionTypes(b.schema)
	b.pruneEmptyRoots()

	if b.issues != nil {
		return nil, b.issues.ErrorOrNil()
	}
	return b.schema, nil
}

func (b *builder) addIssue(issue *CombineIssue) {
	b.issues = multierror.Append(b.issues, issue)
}

func (b *builder) seedRoot(name string) {
	b.schema.Types[name] = &Type{Kind: Object, Name: name, Fields: map[string]*Field{}}
	b.fieldOwner[name] = map[string]string{}
}

func (b *builder) ingestService(service string, doc *ast.SDLDocument) {
	if len(doc.SchemaDefs) > 0 {
		b.addIssue(schemaNotAllowed(service))
	}
	for _, def := range doc.Types {
		switch def.Kind {
		case ast.ObjectKind:
			b.ingestObject(service, def)
		default:
			b.ingestNonObject(service, def)
		}
	}
}

func isRootTypeName(name string) bool {
	return name == queryRoot || name == mutationRoot || name == subscriptionRoot
}

func (b *builder) ingestObject(service string, def *ast.TypeDefinition) {
	typ := b.schema.Types[def.Name]
	if typ == nil {
		typ = &Type{Kind: Object, Name: def.Name, Fields: map[string]*Field{}, Keys: map[string][]*ast.SelectionSet{}}
		b.schema.Types[def.Name] = typ
		b.fieldOwner[def.Name] = map[string]string{}
	}
	if typ.Keys == nil {
		typ.Keys = map[string][]*ast.SelectionSet{}
	}

	// Root operation types have no single owner: every subgraph may
	// contribute fields to Query/Mutation/Subscription without an `extend`
	// keyword, so each contributed field is stamped with its own service
	// instead of falling back to a type-level Owner (spec.md §3 invariant:
	// root types exist iff some subgraph contributes a field to them).
	isRoot := isRootTypeName(def.Name)

	if !def.Extend && !isRoot {
		if typ.Owner != "" && typ.Owner != service {
			b.addIssue(definitionConflicted(service, def.Name,
				fmt.Sprintf("type already has a non-extend owner %q", typ.Owner)))
		} else {
			typ.Owner = service
		}
		for _, iface := range def.Implements {
			typ.Interfaces = appendUnique(typ.Interfaces, iface)
		}
	}

	for _, dir := range def.Directives {
		if dir.Name != "key" {
			continue
		}
		fieldsArg, ok := dir.Args["fields"]
		if !ok || fieldsArg.Kind != ast.StringValue {
			b.addIssue(definitionConflicted(service, def.Name, "@key requires a string `fields` argument"))
			continue
		}
		key, kerr := ast.ParseFieldSet(fieldsArg.Raw.(string))
		if kerr != nil {
			b.addIssue(keyFieldsMustBeFieldsOnType(service, def.Name, kerr.Message))
			continue
		}
		typ.Keys[service] = append(typ.Keys[service], key)
	}

	for _, fd := range def.Fields {
		external := hasDirective(fd.Directives, "external")
		if def.Extend && external && !isRoot {
			// External fields exist only so @requires/@key can reference
			// them; they are never resolved from this service.
			if _, exists := typ.Fields[fd.Name]; !exists {
				typ.Fields[fd.Name] = b.buildField(service, fd, false)
				typ.FieldOrder = append(typ.FieldOrder, fd.Name)
			}
			continue
		}

		if owner, exists := b.fieldOwner[def.Name][fd.Name]; exists && owner != service {
			b.addIssue(fieldConflicted(service, def.Name, fd.Name,
				fmt.Sprintf("already resolved by service %q", owner)))
			continue
		}

		field := b.buildField(service, fd, def.Extend || isRoot)
		typ.Fields[fd.Name] = field
		if !exists(typ.FieldOrder, fd.Name) {
			typ.FieldOrder = append(typ.FieldOrder, fd.Name)
		}
		b.fieldOwner[def.Name][fd.Name] = service
	}
}

func (b *builder) buildField(service string, fd *ast.FieldDefinition, stampService bool) *Field {
	f := &Field{
		Name: fd.Name,
		Type: fd.Type,
	}
	for _, arg := range fd.Args {
		f.Args = append(f.Args, &Argument{Name: arg.Name, Type: arg.Type, Default: arg.Default})
	}
	if stampService {
		f.Service = service
	}
	if reqArg := directiveStringArg(fd.Directives, "requires"); reqArg != "" {
		if ss, err := ast.ParseFieldSet(reqArg); err == nil {
			f.Requires = ss
		} else {
			b.addIssue(keyFieldsMustBeFieldsOnType(service, "", err.Message))
		}
	}
	if provArg := directiveStringArg(fd.Directives, "provides"); provArg != "" {
		if ss, err := ast.ParseFieldSet(provArg); err == nil {
			f.Provides = ss
		} else {
			b.addIssue(keyFieldsMustBeFieldsOnType(service, "", err.Message))
		}
	}
	if dep, ok := deprecatedReason(fd.Directives); ok {
		f.IsDeprecated = true
		f.DeprecationReason = dep
	}
	// @owner(service: "...") / @resolve(service: "...") are accepted as an
	// explicit spelling of field ownership alongside bare extend-stamping,
	// per spec.md §6's consumed-directive list.
	if owner := directiveStringArg(fd.Directives, "owner"); owner != "" {
		f.Service = owner
	}
	if resolve := directiveStringArg(fd.Directives, "resolve"); resolve != "" {
		f.Service = resolve
	}
	return f
}

func (b *builder) ingestNonObject(service string, def *ast.TypeDefinition) {
	sig := nonObjectSignature(def)
	if first, seen := b.typeSigSeen[def.Name]; seen {
		if first != sig {
			b.addIssue(definitionConflicted(service, def.Name, "conflicting redefinition of non-object type"))
		}
		return
	}
	b.typeSigSeen[def.Name] = sig

	typ := &Type{Name: def.Name}
	switch def.Kind {
	case ast.InterfaceKind:
		typ.Kind = Interface
		typ.Fields = map[string]*Field{}
		for _, fd := range def.Fields {
			typ.Fields[fd.Name] = b.buildField(service, fd, false)
			typ.FieldOrder = append(typ.FieldOrder, fd.Name)
		}
	case ast.UnionKind:
		typ.Kind = Union
		typ.PossibleTypes = append([]string(nil), def.UnionTypes...)
		for _, member := range def.UnionTypes {
			if member == def.Name {
				b.addIssue(unionSelfReference(service, def.Name, "union cannot include itself as a member"))
			}
		}
	case ast.EnumKind:
		typ.Kind = Enum
		for _, v := range def.EnumValues {
			desc := &EnumValueDescriptor{Name: v.Name}
			if dep, ok := deprecatedReason(v.Directives); ok {
				desc.IsDeprecated = true
				desc.DeprecationReason = dep
			}
			typ.EnumValues = append(typ.EnumValues, desc)
		}
	case ast.InputKind:
		typ.Kind = InputObject
		typ.InputFields = map[string]*Argument{}
		for _, fd := range def.Fields {
			typ.InputFields[fd.Name] = &Argument{Name: fd.Name, Type: fd.Type}
			typ.FieldOrder = append(typ.FieldOrder, fd.Name)
		}
	case ast.ScalarKind:
		typ.Kind = Scalar
	}
	b.schema.Types[def.Name] = typ
}

// linkInterfaces populates each interface's PossibleTypes from the object
// types that declare `implements`, per spec.md §4.1.
func (b *builder) linkInterfaces() {
	for _, typ := range b.schema.Types {
		if typ.Kind != Object {
			continue
		}
		for _, ifaceName := range typ.Interfaces {
			iface := b.schema.Types[ifaceName]
			if iface == nil || iface.Kind != Interface {
				continue
			}
			iface.PossibleTypes = appendUnique(iface.PossibleTypes, typ.Name)
		}
	}
	for _, typ := range b.schema.Types {
		sort.Strings(typ.PossibleTypes)
	}
}

// validateKeySelections checks that every key/requires/provides selection
// only mentions fields that actually exist on the type it annotates,
// emitting KeyFieldsMustBeFieldsOnType otherwise.
func (b *builder) validateKeySelections() {
	var walk func(service, typeName string, ss *ast.SelectionSet)
	walk = func(service, typeName string, ss *ast.SelectionSet) {
		typ := b.schema.Types[typeName]
		if typ == nil || ss == nil {
			return
		}
		for _, sel := range ss.Selections {
			field, ok := typ.Fields[sel.Name]
			if !ok {
				b.addIssue(keyFieldsMustBeFieldsOnType(service, typeName,
					fmt.Sprintf("field %q is not defined on type %q", sel.Name, typeName)))
				continue
			}
			if sel.SelectionSet != nil {
				walk(service, NamedType(field.Type), sel.SelectionSet)
			}
		}
	}

	for _, typ := range b.schema.Types {
		if typ.Kind != Object {
			continue
		}
		for service, keys := range typ.Keys {
			for _, key := range keys {
				walk(service, typ.Name, key)
			}
		}
		for _, field := range typ.Fields {
			walk(field.Service, typ.Name, field.Requires)
			walk(field.Service, typ.Name, field.Provides)
		}
	}
}

// pruneEmptyRoots drops Mutation/Subscription when no subgraph ever
// contributed a field to them, per spec.md §3's invariant.
func (b *builder) pruneEmptyRoots() {
	if typ := b.schema.Types[mutationRoot]; typ == nil || len(typ.Fields) == 0 {
		delete(b.schema.Types, mutationRoot)
		b.schema.MutationType = ""
	}
	if typ := b.schema.Types[subscriptionRoot]; typ == nil || len(typ.Fields) == 0 {
		delete(b.schema.Types, subscriptionRoot)
		b.schema.SubscriptionType = ""
	}
}

func hasDirective(dirs []ast.Directive, name string) bool {
	for _, d := range dirs {
		if d.Name == name {
			return true
		}
	}
	return false
}

func directiveStringArg(dirs []ast.Directive, name string) string {
	for _, d := range dirs {
		if d.Name != name {
			continue
		}
		if v, ok := d.Args["fields"]; ok && v.Kind == ast.StringValue {
			return v.Raw.(string)
		}
		if v, ok := d.Args["service"]; ok && v.Kind == ast.StringValue {
			return v.Raw.(string)
		}
	}
	return ""
}

func deprecatedReason(dirs []ast.Directive) (string, bool) {
	for _, d := range dirs {
		if d.Name != "deprecated" {
			continue
		}
		if v, ok := d.Args["reason"]; ok && v.Kind == ast.StringValue {
			return v.Raw.(string), true
		}
		return "No longer supported", true
	}
	return "", false
}

func nonObjectSignature(def *ast.TypeDefinition) string {
	s := string(def.Kind) + ":"
	switch def.Kind {
	case ast.InterfaceKind:
		for _, f := range def.Fields {
			s += f.Name + "=" + f.Type.String() + ";"
		}
	case ast.UnionKind:
		members := append([]string(nil), def.UnionTypes...)
		sort.Strings(members)
		for _, m := range members {
			s += m + ";"
		}
	case ast.EnumKind:
		values := make([]string, 0, len(def.EnumValues))
		for _, v := range def.EnumValues {
			values = append(values, v.Name)
		}
		sort.Strings(values)
		for _, v := range values {
			s += v + ";"
		}
	case ast.InputKind:
		for _, f := range def.Fields {
			s += f.Name + "=" + f.Type.String() + ";"
		}
	}
	return s
}

func appendUnique(list []string, v string) []string {
	if exists(list, v) {
		return list
	}
	return append(list, v)
}

func exists(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// MustCompose is a test/tooling helper that panics on composition failure.
func MustCompose(docs []ServiceDocument) *Schema {
	s, err := Compose(docs)
	if err != nil {
		panic(oops.Wrapf(err, "composing schema"))
	}
	return s
}

package schema

import "fmt"

// CombineErrorKind tags a single composition failure, ported from the
// original implementation's combine-error enum (supplemented per
// SPEC_FULL.md §3.1 with UnionSelfReference and KeyFieldsMustBeFieldsOnType,
// which the distillation dropped).
type CombineErrorKind string

const (
	FieldConflicted            CombineErrorKind = "FieldConflicted"
	DefinitionConflicted       CombineErrorKind = "DefinitionConflicted"
	SchemaIsNotAllowed         CombineErrorKind = "SchemaIsNotAllowed"
	UnionSelfReference         CombineErrorKind = "UnionSelfReference"
	KeyFieldsMustBeFieldsOnType CombineErrorKind = "KeyFieldsMustBeFieldsOnType"
)

// CombineIssue is a single composition-time problem, scoped to the service
// and type (and optionally field) where it was found.
type CombineIssue struct {
	Kind      CombineErrorKind
	Service   string
	TypeName  string
	FieldName string
	Message   string
}

func (i *CombineIssue) Error() string {
	if i.FieldName != "" {
		return fmt.Sprintf("%s: service %q type %q field %q: %s", i.Kind, i.Service, i.TypeName, i.FieldName, i.Message)
	}
	if i.TypeName != "" {
		return fmt.Sprintf("%s: service %q type %q: %s", i.Kind, i.Service, i.TypeName, i.Message)
	}
	return fmt.Sprintf("%s: service %q: %s", i.Kind, i.Service, i.Message)
}

func fieldConflicted(service, typeName, fieldName, msg string) *CombineIssue {
	return &CombineIssue{Kind: FieldConflicted, Service: service, TypeName: typeName, FieldName: fieldName, Message: msg}
}

func definitionConflicted(service, typeName, msg string) *CombineIssue {
	return &CombineIssue{Kind: DefinitionConflicted, Service: service, TypeName: typeName, Message: msg}
}

func schemaNotAllowed(service string) *CombineIssue {
	return &CombineIssue{Kind: SchemaIsNotAllowed, Service: service, Message: "subgraph SDL may not declare a top-level `schema { ... }` block"}
}

func unionSelfReference(service, typeName, msg string) *CombineIssue {
	return &CombineIssue{Kind: UnionSelfReference, Service: service, TypeName: typeName, Message: msg}
}

func keyFieldsMustBeFieldsOnType(service, typeName, msg string) *CombineIssue {
	return &CombineIssue{Kind: KeyFieldsMustBeFieldsOnType, Service: service, TypeName: typeName, Message: msg}
}

package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/schema"
	"github.com/gqlfederate/gateway/validation"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	doc, err := ast.ParseSDL(`
		type Query {
			me: User
			users(limit: Int!): [User]
			byRole(role: Role!): [User]
			search(filter: UserFilter!): [User]
		}
		type User @key(fields: "id") {
			id: ID!
			username: String!
			reviews: [Review]
		}
		type Review {
			id: ID!
			body: String!
		}
		enum Role {
			ADMIN
			MEMBER
		}
		input UserFilter {
			username: String
			role: Role!
		}
	`)
	require.Nil(t, err)
	s, err := schema.Compose([]schema.ServiceDocument{{Service: "accounts", Doc: doc}})
	require.NoError(t, err)
	return s
}

func validateQuery(t *testing.T, s *schema.Schema, query string, vars map[string]interface{}) []*ast.Error {
	t.Helper()
	doc, perr := ast.Parse(query)
	require.Nil(t, perr)
	return validation.Validate(s, doc, vars)
}

func TestValidateAcceptsWellFormedQuery(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { me { id username reviews { id body } } }`, nil)
	assert.Empty(t, errs)
}

func TestValidateUnknownField(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { me { id bogus } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "FieldsOnCorrectType", errs[0].Rule)
}

func TestValidateScalarLeafRequiresSelection(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { me }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "ScalarLeafs", errs[0].Rule)
}

func TestValidateScalarMustNotHaveSelection(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { me { id { nope } } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "ScalarLeafs", errs[0].Rule)
}

func TestValidateUnknownFragment(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { me { ...MissingFrag } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "KnownFragmentNames", errs[0].Rule)
}

func TestValidateUnusedFragmentReported(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `
		query { me { id } }
		fragment Unused on User { id }
	`, nil)
	require.NotEmpty(t, errs)
	var found bool
	for _, e := range errs {
		if e.Rule == "NoUnusedFragments" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateFragmentCycle(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `
		query { me { ...A } }
		fragment A on User { id ...B }
		fragment B on User { id ...A }
	`, nil)
	require.NotEmpty(t, errs)
	var found bool
	for _, e := range errs {
		if e.Rule == "NoFragmentCycles" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateMissingRequiredArgument(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { users { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "ProvidedNonNullArguments", errs[0].Rule)
}

func TestValidateUnknownArgument(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { users(limit: 3, bogus: 1) { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "KnownArgumentNames", errs[0].Rule)
}

func TestValidateUndefinedVariable(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { users(limit: $n) { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "NoUndefinedVariables", errs[0].Rule)
}

func TestValidateUnusedVariable(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query($n: Int!) { me { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "NoUnusedVariables", errs[0].Rule)
}

func TestValidateVariablesMustBeInputTypes(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query($u: User!) { me { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "VariablesAreInputTypes", errs[0].Rule)
}

func TestValidateUnknownDirective(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { me @bogus { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "KnownDirectives", errs[0].Rule)
}

func TestValidateSkipDirectiveAccepted(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query($skip: Boolean!) { me { id @skip(if: $skip) } }`, nil)
	assert.Empty(t, errs)
}

func TestValidateArgumentWrongScalarType(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { users(limit: "nope") { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "ArgumentsOfCorrectType", errs[0].Rule)
}

func TestValidateEnumArgumentUnknownValue(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { byRole(role: NOT_A_REAL_VALUE) { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "ArgumentsOfCorrectType", errs[0].Rule)
}

func TestValidateEnumArgumentKnownValueAccepted(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { byRole(role: ADMIN) { id } }`, nil)
	assert.Empty(t, errs)
}

func TestValidateInputObjectUnknownField(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { search(filter: { role: ADMIN, bogus: 1 }) { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "ArgumentsOfCorrectType", errs[0].Rule)
}

func TestValidateInputObjectMissingRequiredField(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { search(filter: { username: "ann" }) { id } }`, nil)
	require.NotEmpty(t, errs)
	assert.Equal(t, "ArgumentsOfCorrectType", errs[0].Rule)
}

func TestValidateInputObjectWellFormedAccepted(t *testing.T) {
	s := testSchema(t)
	errs := validateQuery(t, s, `query { search(filter: { username: "ann", role: MEMBER }) { id } }`, nil)
	assert.Empty(t, errs)
}

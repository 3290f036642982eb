package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleQuery(t *testing.T) {
	doc, err := Parse(`{ me { id username } }`)
	require.Nil(t, err)
	require.Len(t, doc.Operations, 1)
	op := doc.Operations[0]
	assert.Equal(t, Query, op.Kind)
	require.Len(t, op.SelectionSet.Selections, 1)
	assert.Equal(t, "me", op.SelectionSet.Selections[0].Name)
	require.Len(t, op.SelectionSet.Selections[0].SelectionSet.Selections, 2)
}

func TestParseOperationWithVariablesAndDirectives(t *testing.T) {
	doc, err := Parse(`
		query Search($term: String!, $limit: Int = 10) {
			search(term: $term, limit: $limit) @skip(if: false) {
				__typename
				... on User { username }
				... on Product { name }
			}
		}
	`)
	require.Nil(t, err)
	op := doc.Operations[0]
	assert.Equal(t, "Search", op.Name)
	require.Len(t, op.VariableDefinitions, 2)
	assert.Equal(t, "term", op.VariableDefinitions[0].Name)
	assert.True(t, op.VariableDefinitions[0].Type.NonNull)
	assert.Equal(t, int64(10), op.VariableDefinitions[1].Default.Raw)

	search := op.SelectionSet.Selections[0]
	require.Len(t, search.Directives, 1)
	assert.Equal(t, "skip", search.Directives[0].Name)
	require.Len(t, search.SelectionSet.Selections, 3)
	assert.True(t, search.SelectionSet.Selections[1].InlineFragment)
	assert.Equal(t, "User", search.SelectionSet.Selections[1].TypeCondition)
}

func TestParseMutationAndFragment(t *testing.T) {
	doc, err := Parse(`
		mutation {
			createUser(name: "ada") { ...UserFields }
		}
		fragment UserFields on User {
			id
			username
		}
	`)
	require.Nil(t, err)
	assert.Equal(t, Mutation, doc.Operations[0].Kind)
	frag, ok := doc.Fragments["UserFields"]
	require.True(t, ok)
	assert.Equal(t, "User", frag.TypeCondition)
}

func TestParseSDLWithFederationDirectives(t *testing.T) {
	doc, err := ParseSDL(`
		type Query {
			topProducts: [Product]
		}

		type Product @key(fields: "upc") {
			upc: String!
			name: String @external
			reviews: [Review] @provides(fields: "body")
		}

		extend type Review {
			author: User @requires(fields: "id")
		}
	`)
	require.Nil(t, err)
	require.Len(t, doc.Types, 3)
	product := doc.Types[1]
	assert.Equal(t, ObjectKind, product.Kind)
	require.Len(t, product.Directives, 1)
	assert.Equal(t, "key", product.Directives[0].Name)
	assert.Equal(t, "upc", product.Directives[0].Args["fields"].Raw)
}

func TestParseFieldSetNested(t *testing.T) {
	ss, err := ParseFieldSet("id organization { id }")
	require.Nil(t, err)
	require.Len(t, ss.Selections, 2)
	assert.Equal(t, "organization", ss.Selections[1].Name)
	require.NotNil(t, ss.Selections[1].SelectionSet)
	assert.Equal(t, "id", ss.Selections[1].SelectionSet.Selections[0].Name)
}

func TestSyntaxErrorReturnsError(t *testing.T) {
	_, err := Parse(`{ me { `)
	require.NotNil(t, err)
}

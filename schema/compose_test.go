package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlfederate/gateway/ast"
)

func mustSDL(t *testing.T, source string) *ast.SDLDocument {
	t.Helper()
	doc, err := ast.ParseSDL(source)
	require.Nil(t, err)
	return doc
}

func threeServiceSchema(t *testing.T) *Schema {
	accounts := mustSDL(t, `
		type Query {
			me: User
		}
		type User @key(fields: "id") {
			id: ID!
			username: String!
		}
	`)
	products := mustSDL(t, `
		type Query {
			topProducts: [Product]
		}
		type Product @key(fields: "upc") {
			upc: String!
			name: String!
		}
	`)
	reviews := mustSDL(t, `
		extend type Product {
			reviews: [Review]
		}
		extend type User {
			reviews: [Review]
		}
		type Review @key(fields: "id") {
			id: ID!
			body: String!
			author: User @requires(fields: "id")
			product: Product
		}
	`)

	s, err := Compose([]ServiceDocument{
		{Service: "accounts", Doc: accounts},
		{Service: "products", Doc: products},
		{Service: "reviews", Doc: reviews},
	})
	require.NoError(t, err)
	return s
}

func TestComposeBasicFederatedSchema(t *testing.T) {
	s := threeServiceSchema(t)

	user := s.Lookup("User")
	require.NotNil(t, user)
	assert.Equal(t, "accounts", user.Owner)
	assert.Equal(t, "reviews", user.Fields["reviews"].Service)

	product := s.Lookup("Product")
	assert.Equal(t, "products", product.Owner)
	assert.Equal(t, "reviews", product.Fields["reviews"].Service)

	review := s.Lookup("Review")
	require.NotNil(t, review.Fields["author"].Requires)
	assert.Equal(t, "id", review.Fields["author"].Requires.Selections[0].Name)

	assert.Equal(t, "Query", s.QueryType)
	assert.Empty(t, s.MutationType)

	query := s.Lookup("Query")
	_, hasSchemaField := query.Fields["__schema"]
	assert.True(t, hasSchemaField)
}

func TestComposeDuplicateOwnerConflict(t *testing.T) {
	a := mustSDL(t, `type Query { me: User } type User @key(fields: "id") { id: ID! }`)
	b := mustSDL(t, `type User @key(fields: "id") { id: ID! name: String }`)

	_, err := Compose([]ServiceDocument{
		{Service: "a", Doc: a},
		{Service: "b", Doc: b},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DefinitionConflicted")
}

func TestComposeSchemaBlockForbidden(t *testing.T) {
	doc := mustSDL(t, `
		schema { query: Query }
		type Query { me: String }
	`)
	_, err := Compose([]ServiceDocument{{Service: "a", Doc: doc}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SchemaIsNotAllowed")
}

func TestComposeInterfacePossibleTypes(t *testing.T) {
	doc := mustSDL(t, `
		type Query { search: [SearchResult] }
		interface SearchResult { id: ID! }
		type User implements SearchResult @key(fields: "id") { id: ID! username: String! }
		type Product implements SearchResult @key(fields: "upc") { id: ID! upc: String! }
	`)
	s, err := Compose([]ServiceDocument{{Service: "a", Doc: doc}})
	require.NoError(t, err)
	iface := s.Lookup("SearchResult")
	assert.ElementsMatch(t, []string{"Product", "User"}, iface.PossibleTypes)
}

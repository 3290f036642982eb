package introspection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/introspection"
	"github.com/gqlfederate/gateway/schema"
)

func composed(t *testing.T) *schema.Schema {
	t.Helper()
	doc, err := ast.ParseSDL(`
		type Query {
			me: User
		}
		type User @key(fields: "id") {
			id: ID!
			username: String!
		}
	`)
	require.Nil(t, err)
	s, err := schema.Compose([]schema.ServiceDocument{{Service: "accounts", Doc: doc}})
	require.NoError(t, err)
	return s
}

func parseSelection(t *testing.T, query string) *ast.Selection {
	t.Helper()
	doc, err := ast.Parse(query)
	require.Nil(t, err)
	op, oerr := doc.OperationByName("")
	require.NoError(t, oerr)
	return op.SelectionSet.Selections[0]
}

func TestResolveSchemaQueryType(t *testing.T) {
	s := composed(t)
	sel := parseSelection(t, `{ __schema { queryType { name } } }`)
	doc, _ := ast.Parse(`{ __schema { queryType { name } } }`)

	val, errs := introspection.Resolve(s, sel, doc, nil)
	require.Empty(t, errs)

	m := val.(map[string]interface{})
	qt := m["queryType"].(map[string]interface{})
	assert.Equal(t, "Query", qt["name"])
}

func TestResolveTypeByName(t *testing.T) {
	s := composed(t)
	query := `{ __type(name: "User") { name kind fields { name } } }`
	doc, _ := ast.Parse(query)
	sel := doc.Operations[0].SelectionSet.Selections[0]

	val, errs := introspection.Resolve(s, sel, doc, nil)
	require.Empty(t, errs)

	m := val.(map[string]interface{})
	assert.Equal(t, "User", m["name"])
	assert.Equal(t, "OBJECT", m["kind"])

	fields := m["fields"].([]interface{})
	var names []string
	for _, f := range fields {
		names = append(names, f.(map[string]interface{})["name"].(string))
	}
	assert.ElementsMatch(t, []string{"id", "username"}, names)
}

func TestResolveUnknownTypeReturnsNil(t *testing.T) {
	s := composed(t)
	query := `{ __type(name: "Nope") { name } }`
	doc, _ := ast.Parse(query)
	sel := doc.Operations[0].SelectionSet.Selections[0]

	val, errs := introspection.Resolve(s, sel, doc, nil)
	require.Empty(t, errs)
	assert.Nil(t, val)
}

package executor_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/executor"
	"github.com/gqlfederate/gateway/planner"
	"github.com/gqlfederate/gateway/schema"
	"github.com/gqlfederate/gateway/transport"
)

func mustSDL(t *testing.T, source string) *ast.SDLDocument {
	t.Helper()
	doc, err := ast.ParseSDL(source)
	require.Nil(t, err)
	return doc
}

func threeServiceSchema(t *testing.T) *schema.Schema {
	accounts := mustSDL(t, `
		type Query {
			me: User
		}
		type User @key(fields: "id") {
			id: ID!
			username: String!
		}
	`)
	reviews := mustSDL(t, `
		extend type User {
			reviews: [Review]
		}
		type Review @key(fields: "id") {
			id: ID!
			body: String!
		}
	`)

	s, err := schema.Compose([]schema.ServiceDocument{
		{Service: "accounts", Doc: accounts},
		{Service: "reviews", Doc: reviews},
	})
	require.NoError(t, err)
	return s
}

func parseDoc(t *testing.T, query string) *ast.Document {
	t.Helper()
	doc, err := ast.Parse(query)
	require.Nil(t, err)
	return doc
}

// fakeFetcher answers Query calls from a per-service function, letting each
// test inspect the rendered query/variables and hand back a canned
// response without any real network traffic.
type fakeFetcher struct {
	query func(service string, req *transport.Request) (*transport.Response, error)
}

func (f *fakeFetcher) Query(ctx context.Context, service string, req *transport.Request) (*transport.Response, error) {
	return f.query(service, req)
}

func (f *fakeFetcher) Subscribe(ctx context.Context, service string, req *transport.Request) (<-chan *transport.Event, error) {
	return nil, &transport.ErrNotSubscribable{Service: service}
}

func jsonData(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestExecutorRunSingleServiceFetch(t *testing.T) {
	s := threeServiceSchema(t)
	doc := parseDoc(t, `{ me { username } }`)
	res, errs := planner.Plan(s, doc, "", nil)
	require.Empty(t, errs)

	fetcher := &fakeFetcher{
		query: func(service string, req *transport.Request) (*transport.Response, error) {
			assert.Equal(t, "accounts", service)
			return &transport.Response{Data: jsonData(t, map[string]interface{}{
				"me": map[string]interface{}{"username": "ada"},
			})}, nil
		},
	}

	e := executor.New(s, fetcher, nil, nil)
	result := e.Run(context.Background(), res.Root, doc, "", nil)

	require.Empty(t, result.Errors)
	me, ok := result.Data["me"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ada", me["username"])
}

func TestExecutorRunFlattenMergesCrossServiceList(t *testing.T) {
	s := threeServiceSchema(t)
	doc := parseDoc(t, `{ me { username reviews { body } } }`)
	res, errs := planner.Plan(s, doc, "", nil)
	require.Empty(t, errs)

	fetcher := &fakeFetcher{
		query: func(service string, req *transport.Request) (*transport.Response, error) {
			switch service {
			case "accounts":
				return &transport.Response{Data: jsonData(t, map[string]interface{}{
					"me": map[string]interface{}{
						"username":          "ada",
						"__key1_id":         "1",
						"__key1___typename": "User",
					},
				})}, nil
			case "reviews":
				reps, _ := req.Variables["representations"].([]interface{})
				require.Len(t, reps, 1)
				rep, _ := reps[0].(map[string]interface{})
				assert.Equal(t, "1", rep["id"])
				return &transport.Response{Data: jsonData(t, map[string]interface{}{
					"_entities": []interface{}{
						map[string]interface{}{
							"reviews": []interface{}{map[string]interface{}{"body": "nice"}},
						},
					},
				})}, nil
			default:
				t.Fatalf("unexpected service %q", service)
				return nil, nil
			}
		},
	}

	e := executor.New(s, fetcher, nil, nil)
	result := e.Run(context.Background(), res.Root, doc, "", nil)

	require.Empty(t, result.Errors)
	me, ok := result.Data["me"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ada", me["username"])
	assert.Nil(t, me["__key1_id"])
	assert.Nil(t, me["__key1___typename"])

	reviews, ok := me["reviews"].([]interface{})
	require.True(t, ok)
	require.Len(t, reviews, 1)
	review := reviews[0].(map[string]interface{})
	assert.Equal(t, "nice", review["body"])
}

func TestExecutorFlattenSkipsWhenNoRepresentations(t *testing.T) {
	s := threeServiceSchema(t)
	doc := parseDoc(t, `{ me { username reviews { body } } }`)
	res, errs := planner.Plan(s, doc, "", nil)
	require.Empty(t, errs)

	reviewsCalled := false
	fetcher := &fakeFetcher{
		query: func(service string, req *transport.Request) (*transport.Response, error) {
			switch service {
			case "accounts":
				return &transport.Response{Data: jsonData(t, map[string]interface{}{
					"me": nil,
				})}, nil
			case "reviews":
				reviewsCalled = true
				return &transport.Response{}, nil
			default:
				t.Fatalf("unexpected service %q", service)
				return nil, nil
			}
		},
	}

	e := executor.New(s, fetcher, nil, nil)
	result := e.Run(context.Background(), res.Root, doc, "", nil)

	require.Empty(t, result.Errors)
	assert.False(t, reviewsCalled, "flatten must not issue a sub-request when no representations were collected")
	assert.Nil(t, result.Data["me"])
}

func TestExecutorDropsFetchDataWhenTopLevelErrorsPresent(t *testing.T) {
	s := threeServiceSchema(t)
	doc := parseDoc(t, `{ me { username } }`)
	res, errs := planner.Plan(s, doc, "", nil)
	require.Empty(t, errs)

	fetcher := &fakeFetcher{
		query: func(service string, req *transport.Request) (*transport.Response, error) {
			return &transport.Response{
				Data: jsonData(t, map[string]interface{}{
					"me": map[string]interface{}{"username": "ada"},
				}),
				Errors: []*ast.Error{{Message: "boom"}},
			}, nil
		},
	}

	e := executor.New(s, fetcher, nil, nil)
	result := e.Run(context.Background(), res.Root, doc, "", nil)

	require.Len(t, result.Errors, 1)
	// spec.md §7: a sub-response's data is ignored entirely when its
	// top-level errors array is non-empty, never partially merged.
	assert.Nil(t, result.Data["me"])
}

func TestExecutorDropsFlattenEntityDataWhenTopLevelErrorsPresent(t *testing.T) {
	s := threeServiceSchema(t)
	doc := parseDoc(t, `{ me { username reviews { body } } }`)
	res, errs := planner.Plan(s, doc, "", nil)
	require.Empty(t, errs)

	fetcher := &fakeFetcher{
		query: func(service string, req *transport.Request) (*transport.Response, error) {
			switch service {
			case "accounts":
				return &transport.Response{Data: jsonData(t, map[string]interface{}{
					"me": map[string]interface{}{
						"username":          "ada",
						"__key1_id":         "1",
						"__key1___typename": "User",
					},
				})}, nil
			case "reviews":
				return &transport.Response{
					Data: jsonData(t, map[string]interface{}{
						"_entities": []interface{}{
							map[string]interface{}{
								"reviews": []interface{}{map[string]interface{}{"body": "nice"}},
							},
						},
					}),
					Errors: []*ast.Error{{
						Message: "boom",
						Path:    []interface{}{"_entities", float64(0), "reviews"},
					}},
				}, nil
			default:
				t.Fatalf("unexpected service %q", service)
				return nil, nil
			}
		},
	}

	e := executor.New(s, fetcher, nil, nil)
	result := e.Run(context.Background(), res.Root, doc, "", nil)

	require.Len(t, result.Errors, 1)
	me, ok := result.Data["me"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ada", me["username"])
	// The reviews entity data came back alongside a top-level error, so it
	// must not be merged even though it was present in the payload.
	assert.Nil(t, me["reviews"])
}

func TestExecutorRewritesEntityErrorPaths(t *testing.T) {
	s := threeServiceSchema(t)
	doc := parseDoc(t, `{ me { username reviews { body } } }`)
	res, errs := planner.Plan(s, doc, "", nil)
	require.Empty(t, errs)

	fetcher := &fakeFetcher{
		query: func(service string, req *transport.Request) (*transport.Response, error) {
			switch service {
			case "accounts":
				return &transport.Response{Data: jsonData(t, map[string]interface{}{
					"me": map[string]interface{}{
						"username":          "ada",
						"__key1_id":         "1",
						"__key1___typename": "User",
					},
				})}, nil
			case "reviews":
				return &transport.Response{
					Data: jsonData(t, map[string]interface{}{
						"_entities": []interface{}{map[string]interface{}{"reviews": nil}},
					}),
					Errors: []*ast.Error{{
						Message: "boom",
						Path:    []interface{}{"_entities", float64(0), "reviews"},
					}},
				}, nil
			default:
				t.Fatalf("unexpected service %q", service)
				return nil, nil
			}
		},
	}

	e := executor.New(s, fetcher, nil, nil)
	result := e.Run(context.Background(), res.Root, doc, "", nil)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, []interface{}{"me", "reviews"}, result.Errors[0].Path)
}

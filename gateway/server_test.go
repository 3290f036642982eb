package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/gateway"
	"github.com/gqlfederate/gateway/schema"
	"github.com/gqlfederate/gateway/transport"
)

type fakeFetcher struct {
	query func(service string, req *transport.Request) (*transport.Response, error)
}

func (f *fakeFetcher) Query(ctx context.Context, service string, req *transport.Request) (*transport.Response, error) {
	return f.query(service, req)
}

func (f *fakeFetcher) Subscribe(ctx context.Context, service string, req *transport.Request) (<-chan *transport.Event, error) {
	return nil, &transport.ErrNotSubscribable{Service: service}
}

func singleServiceSchema(t *testing.T) *schema.Schema {
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
	s, composeErr := schema.Compose([]schema.ServiceDocument{{Service: "accounts", Doc: doc}})
	require.NoError(t, composeErr)
	return s
}

func jsonBody(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestServerHandlesPostQuery(t *testing.T) {
	s := singleServiceSchema(t)
	holder := gateway.NewSchemaHolder(s)
	fetcher := &fakeFetcher{
		query: func(service string, req *transport.Request) (*transport.Response, error) {
			return &transport.Response{Data: jsonBody(t, map[string]interface{}{
				"me": map[string]interface{}{"username": "ada"},
			})}, nil
		},
	}

	srv := gateway.NewServer(holder, fetcher, nil, nil)
	ts := httptest.NewServer(srv.Handler(nil))
	defer ts.Close()

	body := `{"query":"{ me { username } }"}`
	resp, err := http.Post(ts.URL+"/graphql", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	me, ok := parsed.Data["me"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ada", me["username"])
}

func TestServerRejectsGetPost(t *testing.T) {
	s := singleServiceSchema(t)
	holder := gateway.NewSchemaHolder(s)
	fetcher := &fakeFetcher{query: func(service string, req *transport.Request) (*transport.Response, error) {
		t.Fatal("fetcher should not be called")
		return nil, nil
	}}

	srv := gateway.NewServer(holder, fetcher, nil, nil)
	ts := httptest.NewServer(srv.Handler(nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/graphql")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerHealthz(t *testing.T) {
	s := singleServiceSchema(t)
	holder := gateway.NewSchemaHolder(s)
	srv := gateway.NewServer(holder, &fakeFetcher{}, nil, nil)
	ts := httptest.NewServer(srv.Handler(nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSWildcardSetsHeader(t *testing.T) {
	mw := gateway.CORS([]string{"*"})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

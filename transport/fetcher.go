// Package transport implements the gateway's Fetcher capability: the sole
// interface through which the executor reaches upstream services, and its
// two concrete transports (spec.md §4.6). Grounded on
// federation/server.go's DirectExecutorClient/ExecutorClient split (Design
// Note: "Trait-object Fetcher ⇒ single capability interface with a
// concrete error enum").
package transport

import (
	"context"
	"encoding/json"

	"github.com/gqlfederate/gateway/ast"
)

// Request is one sub-request the executor hands to a Fetcher: the
// rendered query/mutation/subscription text plus its variable bindings.
type Request struct {
	Query     string
	Variables map[string]interface{}
}

// Response is an upstream's GraphQL-shaped reply.
type Response struct {
	Data       json.RawMessage
	Errors     []*ast.Error
	Extensions map[string]interface{}
}

// Event is one emission (or terminal error) on a subscription stream.
type Event struct {
	Response *Response
	Err      error
}

// Fetcher is the single capability the executor depends on. Query serves
// Fetch/Flatten nodes; Subscribe serves Subscribe plans. A transport that
// cannot subscribe (the HTTP transport) returns ErrNotSubscribable.
type Fetcher interface {
	Query(ctx context.Context, service string, req *Request) (*Response, error)
	Subscribe(ctx context.Context, service string, req *Request) (<-chan *Event, error)
}

// ErrNotSubscribable is returned by transports with no subscription
// capability.
type ErrNotSubscribable struct {
	Service string
}

func (e *ErrNotSubscribable) Error() string {
	return "transport: service " + e.Service + " does not support subscriptions"
}

// ErrNotReady is returned when a WebSocket transport has no live
// connection to the requested service (spec.md §4.6: "in-flight requests
// fail with 'Not ready' when there is no live connection").
type ErrNotReady struct {
	Service string
}

func (e *ErrNotReady) Error() string {
	return "transport: service " + e.Service + " is not ready"
}

// Package gateway wires the planner, executor, and transports into an
// HTTP/WS entrypoint, and keeps the composed schema current as subgraphs
// change. Grounded on federation/schema_syncer.go and federation/server.go.
package gateway

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/samsarahq/go/oops"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/internal/telemetry"
	"github.com/gqlfederate/gateway/schema"
	"github.com/gqlfederate/gateway/transport"
)

func unmarshalResponseData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// SchemaSyncer periodically checks every configured subgraph for a new SDL
// document and recomposes the schema, per federation/schema_syncer.go's
// SchemaSyncer/IntrospectionSchemaSyncer split — adapted from polling each
// subgraph's standard introspection result to polling its federation
// `_service { sdl }` field, since the composed schema's `@key`/`@requires`
// directives live only in subgraph SDL text (spec.md §4.1 Non-goals:
// "Schema composition from raw subgraph SDL is in scope").
type SchemaSyncer interface {
	Sync(ctx context.Context) (*schema.Schema, error)
}

// SubgraphSchemaSyncer implements SchemaSyncer against a set of services
// reachable through fetcher.
type SubgraphSchemaSyncer struct {
	services []string
	fetcher  transport.Fetcher
	logger   telemetry.Logger
}

// NewSubgraphSchemaSyncer builds a syncer over the given service names.
func NewSubgraphSchemaSyncer(services []string, fetcher transport.Fetcher, logger telemetry.Logger) *SubgraphSchemaSyncer {
	return &SubgraphSchemaSyncer{services: services, fetcher: fetcher, logger: logger}
}

const serviceSDLQuery = `{ _service { sdl } }`

func (s *SubgraphSchemaSyncer) Sync(ctx context.Context) (*schema.Schema, error) {
	docs := make([]schema.ServiceDocument, 0, len(s.services))
	for _, service := range s.services {
		resp, err := s.fetcher.Query(ctx, service, &transport.Request{Query: serviceSDLQuery})
		if err != nil {
			return nil, oops.Wrapf(err, "fetching SDL from %s", service)
		}

		var body struct {
			Service struct {
				SDL string `json:"sdl"`
			} `json:"_service"`
		}
		if err := unmarshalResponseData(resp.Data, &body); err != nil {
			return nil, oops.Wrapf(err, "decoding SDL response from %s", service)
		}

		sdl, parseErr := ast.ParseSDL(body.Service.SDL)
		if parseErr != nil {
			return nil, oops.Wrapf(parseErr, "parsing SDL from %s", service)
		}
		docs = append(docs, schema.ServiceDocument{Service: service, Doc: sdl})
	}

	composed, err := schema.Compose(docs)
	if err != nil {
		return nil, oops.Wrapf(err, "composing schema")
	}
	return composed, nil
}

// SchemaHolder atomically swaps the composed schema so in-flight requests
// keep using the epoch they started with, per spec.md §3 "the composed
// schema is shared immutably": once built, a *schema.Schema is never
// mutated, only replaced.
type SchemaHolder struct {
	v atomic.Value // holds *schema.Schema
}

func NewSchemaHolder(s *schema.Schema) *SchemaHolder {
	h := &SchemaHolder{}
	h.v.Store(s)
	return h
}

func (h *SchemaHolder) Load() *schema.Schema {
	return h.v.Load().(*schema.Schema)
}

func (h *SchemaHolder) Store(s *schema.Schema) {
	h.v.Store(s)
}

// PollSchema runs syncer on a fixed interval until ctx is done, replacing
// holder's schema on every successful sync and logging (never panicking on)
// failures so a single broken subgraph doesn't take down an otherwise
// healthy gateway.
func PollSchema(ctx context.Context, syncer SchemaSyncer, holder *SchemaHolder, interval time.Duration, logger telemetry.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			composed, err := syncer.Sync(ctx)
			if err != nil {
				if logger != nil {
					logger.Warn("schema sync failed", "error", err.Error())
				}
				continue
			}
			holder.Store(composed)
			if logger != nil {
				logger.Info("schema sync succeeded", "types", len(composed.Types))
			}
		}
	}
}

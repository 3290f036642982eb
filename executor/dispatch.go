package executor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/internal/concurrencylimiter"
	"github.com/gqlfederate/gateway/internal/telemetry"
	"github.com/gqlfederate/gateway/introspection"
	"github.com/gqlfederate/gateway/planner"
	"github.com/gqlfederate/gateway/schema"
	"github.com/gqlfederate/gateway/transport"
)

// run dispatches n against acc, recursing into children per spec.md §4.4's
// per-Kind node dispatch. doc/vars supply the introspection resolver and the
// document-level variables Fetch/Flatten nodes select from by name.
func (e *Executor) run(ctx context.Context, n *planner.Node, doc *ast.Document, vars map[string]interface{}, acc *accumulator) {
	if n == nil {
		return
	}
	switch n.Kind {
	case planner.Sequence:
		for _, c := range n.Children {
			e.run(ctx, c, doc, vars, acc)
			if ctx.Err() != nil {
				return
			}
		}

	case planner.Parallel:
		var wg sync.WaitGroup
		for _, c := range n.Children {
			c := c
			wg.Add(1)
			go func() {
				defer wg.Done()
				childCtx, release := concurrencylimiter.Acquire(ctx)
				defer release()
				e.run(childCtx, c, doc, vars, acc)
			}()
		}
		wg.Wait()

	case planner.Introspection:
		value, errs := introspection.Resolve(e.schema, n.Selection, doc, vars)
		acc.mergeAtPath(func(root map[string]interface{}) {
			root[n.Selection.ResponseKey()] = value
		})
		acc.addErrors(errs)

	case planner.Fetch:
		e.runFetch(ctx, n, vars, acc)

	case planner.Flatten:
		e.runFlatten(ctx, n, vars, acc)
	}
}

func selectVars(names []string, vars map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for _, name := range names {
		if v, ok := vars[name]; ok {
			out[name] = v
		}
	}
	return out
}

func (e *Executor) runFetch(ctx context.Context, n *planner.Node, vars map[string]interface{}, acc *accumulator) {
	start := time.Now()
	req := &transport.Request{Query: n.QueryText, Variables: selectVars(n.Variables, vars)}
	resp, err := e.fetcher.Query(ctx, n.Service, req)
	e.observeSubRequest(n.Service, "fetch", start, err)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("fetch failed", "service", n.Service, "error", err.Error())
		}
		acc.addErrors([]*ast.Error{ast.Errorf("fetching from %s: %s", n.Service, err.Error())})
		return
	}

	// spec.md §7: a sub-response carrying top-level errors has its data
	// dropped entirely rather than partially merged.
	if len(resp.Errors) > 0 {
		acc.addErrors(rewriteErrors(resp.Errors, nil))
		return
	}

	var data map[string]interface{}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			acc.addErrors([]*ast.Error{ast.Errorf("decoding response from %s: %s", n.Service, err.Error())})
			return
		}
	}
	acc.mergeRoot(data)
}

// observeSubRequest records latency and outcome for one Fetch/Flatten
// sub-request; a nil Metrics (e.g. in tests) is a silent no-op.
func (e *Executor) observeSubRequest(service, kind string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.SubRequestLatency.WithLabelValues(service, kind).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.metrics.SubRequestTotal.WithLabelValues(service, kind, outcome).Inc()
}

// runFlatten implements spec.md §4.4's 5-step Flatten algorithm.
func (e *Executor) runFlatten(ctx context.Context, n *planner.Node, vars map[string]interface{}, acc *accumulator) {
	var representations []map[string]interface{}
	var flags []representationFlag

	acc.mergeAtPath(func(root map[string]interface{}) {
		representations, flags = collectRepresentations(root, n.ResponsePath, n.KeyPrefix, n.EntityType)
	})

	if len(representations) == 0 {
		return
	}
	if e.metrics != nil {
		e.metrics.FlattenRepresented.WithLabelValues(n.Service).Observe(float64(len(representations)))
	}

	reqVars := selectVars(n.Variables, vars)
	reps := make([]interface{}, len(representations))
	for i, r := range representations {
		reps[i] = r
	}
	reqVars["representations"] = reps

	start := time.Now()
	resp, err := e.fetcher.Query(ctx, n.Service, &transport.Request{Query: n.QueryText, Variables: reqVars})
	e.observeSubRequest(n.Service, "flatten", start, err)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("entity fetch failed", "service", n.Service, "error", err.Error())
		}
		acc.addErrors([]*ast.Error{ast.Errorf("fetching entities from %s: %s", n.Service, err.Error())})
		return
	}

	// spec.md §7: drop the entity data entirely when the sub-response
	// carries top-level errors, same as runFetch.
	if len(resp.Errors) > 0 {
		acc.addErrors(rewriteErrors(resp.Errors, n.ResponsePath))
		return
	}

	var body struct {
		Entities []interface{} `json:"_entities"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &body); err != nil {
			acc.addErrors([]*ast.Error{ast.Errorf("decoding entities from %s: %s", n.Service, err.Error())})
			return
		}
	}

	acc.mergeAtPath(func(root map[string]interface{}) {
		mergeEntities(root, n.ResponsePath, flags, body.Entities)
	})
}

// rewriteErrors applies spec.md §4.4's error-path rewriting: a sub-response
// error's leading "_entities" path segment is replaced by the Flatten node's
// response path, with a "0" step injected wherever that path crosses a list.
// A nil responsePath (plain Fetch) leaves errors untouched.
func rewriteErrors(errs []*ast.Error, responsePath []planner.PathSegment) []*ast.Error {
	if responsePath == nil {
		return errs
	}
	out := make([]*ast.Error, len(errs))
	for i, e := range errs {
		rewritten := *e
		rewritten.Path = rewritePath(e.Path, responsePath)
		out[i] = &rewritten
	}
	return out
}

func rewritePath(path []interface{}, responsePath []planner.PathSegment) []interface{} {
	prefix := make([]interface{}, 0, len(responsePath)+1)
	for _, seg := range responsePath {
		if seg.Field != "" {
			prefix = append(prefix, seg.Field)
		}
		if seg.IsList {
			prefix = append(prefix, float64(0))
		}
	}

	// Drop the leading "_entities" token and the entity-array index that
	// follows it: that index only identifies which representation the
	// sub-response belongs to, a detail the client-facing path has no use
	// for once it's replaced by the Flatten node's own response path.
	if len(path) > 0 && path[0] == "_entities" {
		path = path[1:]
		if len(path) > 0 {
			path = path[1:]
		}
	}
	return append(prefix, path...)
}

// defaultMaxParallelFetches bounds how many Parallel children run at once
// for a single request, so a query that fans out across many subgraphs in
// one plan layer can't flood them all simultaneously.
const defaultMaxParallelFetches = 16

// Executor runs a plan tree against a Fetcher, accumulating one response.
type Executor struct {
	schema         *schema.Schema
	fetcher        transport.Fetcher
	logger         telemetry.Logger
	metrics        *telemetry.Metrics
	maxParallelism int
}

// New builds an Executor bound to a composed schema and upstream Fetcher.
func New(s *schema.Schema, fetcher transport.Fetcher, logger telemetry.Logger, metrics *telemetry.Metrics) *Executor {
	return &Executor{schema: s, fetcher: fetcher, logger: logger, metrics: metrics, maxParallelism: defaultMaxParallelFetches}
}

package executor

import (
	"context"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/internal/concurrencylimiter"
	"github.com/gqlfederate/gateway/planner"
)

// Result is one complete GraphQL-shaped response: a data tree and any
// errors collected while producing it.
type Result struct {
	Data   map[string]interface{} `json:"data"`
	Errors []*ast.Error           `json:"errors,omitempty"`
}

// Run executes a query or mutation plan to completion and returns one
// Result, per spec.md §4.4's "single mutable response accumulator".
// Grounded on federation/server.go's ExecuteRequest one-shot
// reactive.NewRerunner usage, ported as a plain synchronous call since the
// gateway's plan tree has no incremental/live-query semantics to rerun.
// operationName identifies which operation in doc the client selected,
// needed to shape the final response down to its selection set.
func (e *Executor) Run(ctx context.Context, root *planner.Node, doc *ast.Document, operationName string, vars map[string]interface{}) *Result {
	acc := newAccumulator()
	ctx = concurrencylimiter.With(ctx, e.maxParallelism)
	e.run(ctx, root, doc, vars, acc)
	data, errs := acc.snapshot()

	if op, err := doc.OperationByName(operationName); err == nil {
		data = shape(data, op.SelectionSet, doc, vars)
	}

	return &Result{Data: data, Errors: errs}
}

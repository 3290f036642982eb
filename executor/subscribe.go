package executor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gqlfederate/gateway/ast"
	"github.com/gqlfederate/gateway/internal/concurrencylimiter"
	"github.com/gqlfederate/gateway/planner"
	"github.com/gqlfederate/gateway/transport"
)

// Subscribe opens every upstream subscription a SubscribePlan names,
// multiplexes their emissions into one channel, and runs the optional
// post-event plan tree to completion before forwarding each one, per
// spec.md §4.4's subscription semantics. The returned channel is closed
// once ctx is done or every upstream subscription has terminated.
func (e *Executor) Subscribe(ctx context.Context, sp *planner.SubscribePlan, doc *ast.Document, operationName string, vars map[string]interface{}) (<-chan *Result, error) {
	out := make(chan *Result)

	var opSelectionSet *ast.SelectionSet
	if op, err := doc.OperationByName(operationName); err == nil {
		opSelectionSet = op.SelectionSet
	}

	type upstream struct {
		fetch  *planner.SubscribeFetch
		events <-chan *transport.Event
	}
	var upstreams []upstream
	for _, fetch := range sp.Fetches {
		events, err := e.fetcher.Subscribe(ctx, fetch.Service, &transport.Request{
			Query:     fetch.QueryText,
			Variables: selectVars(fetch.Variables, vars),
		})
		if err != nil {
			return nil, err
		}
		upstreams = append(upstreams, upstream{fetch: fetch, events: events})
	}

	go func() {
		defer close(out)

		done := make(chan struct{})
		results := make(chan *Result)
		var wg sync.WaitGroup
		for _, u := range upstreams {
			u := u
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case ev, ok := <-u.events:
						if !ok {
							return
						}
						select {
						case results <- e.handleSubscriptionEvent(ctx, sp, u.fetch, ev, doc, opSelectionSet, vars):
						case <-done:
							return
						}
					case <-done:
						return
					case <-ctx.Done():
						return
					}
				}
			}()
		}
		finished := make(chan struct{})
		go func() {
			wg.Wait()
			close(finished)
		}()

		for {
			select {
			case r := <-results:
				select {
				case out <- r:
				case <-ctx.Done():
					close(done)
					return
				}
			case <-finished:
				close(done)
				return
			case <-ctx.Done():
				close(done)
				return
			}
		}
	}()

	return out, nil
}

// handleSubscriptionEvent treats one upstream emission as a fresh
// accumulator: the emission's data seeds the root, then (if present) the
// post-event plan tree runs to completion against that same accumulator
// before the Result is forwarded.
func (e *Executor) handleSubscriptionEvent(ctx context.Context, sp *planner.SubscribePlan, fetch *planner.SubscribeFetch, ev *transport.Event, doc *ast.Document, opSelectionSet *ast.SelectionSet, vars map[string]interface{}) *Result {
	if ev.Err != nil {
		return &Result{Errors: []*ast.Error{ast.Errorf("subscription to %s: %s", fetch.Service, ev.Err.Error())}}
	}

	acc := newAccumulator()
	var data map[string]interface{}
	if len(ev.Response.Data) > 0 {
		if err := json.Unmarshal(ev.Response.Data, &data); err != nil {
			return &Result{Errors: []*ast.Error{ast.Errorf("decoding event from %s: %s", fetch.Service, err.Error())}}
		}
	}
	acc.mergeRoot(data)
	acc.addErrors(ev.Response.Errors)

	if sp.PostEvent != nil {
		ctx = concurrencylimiter.With(ctx, e.maxParallelism)
		e.run(ctx, sp.PostEvent, doc, vars, acc)
	}

	resultData, errs := acc.snapshot()
	resultData = shape(resultData, opSelectionSet, doc, vars)
	return &Result{Data: resultData, Errors: errs}
}

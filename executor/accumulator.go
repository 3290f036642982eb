package executor

import (
	"sync"

	"github.com/gqlfederate/gateway/ast"
)

// accumulator is the executor's single mutable response state: a data
// value and an error list, guarded by a mutex held only during merges,
// never across suspension points (spec.md §5 "the guard is held only
// during merge operations, never across suspension points").
type accumulator struct {
	mu   sync.Mutex
	data map[string]interface{}
	errs []*ast.Error
}

func newAccumulator() *accumulator {
	return &accumulator{data: map[string]interface{}{}}
}

// mergeRoot merges a Fetch node's whole response object directly into the
// root, object-into-object, per spec.md §4.4's "Fetch: ... merge the
// response".
func (a *accumulator) mergeRoot(value map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range value {
		if existing, ok := a.data[k]; ok {
			a.data[k] = mergeValue(existing, v)
		} else {
			a.data[k] = v
		}
	}
}

// mergeAtPath runs fn with the lock held, giving it direct mutable access
// to the accumulator's data tree. Flatten uses this to walk the tree and
// splice entity results in place.
func (a *accumulator) mergeAtPath(fn func(root map[string]interface{})) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.data)
}

func (a *accumulator) addErrors(errs []*ast.Error) {
	if len(errs) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, errs...)
}

func (a *accumulator) snapshot() (map[string]interface{}, []*ast.Error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data, a.errs
}

// mergeValue implements spec.md §4.4's merge rules: null target takes the
// incoming value; object recurses per key; equal-length lists zip
// element-wise; anything else is left untouched (the upstream produced a
// shape the planner did not anticipate).
func mergeValue(target, incoming interface{}) interface{} {
	if target == nil {
		return incoming
	}
	switch t := target.(type) {
	case map[string]interface{}:
		in, ok := incoming.(map[string]interface{})
		if !ok {
			return target
		}
		for k, v := range in {
			if existing, ok := t[k]; ok {
				t[k] = mergeValue(existing, v)
			} else {
				t[k] = v
			}
		}
		return t
	case []interface{}:
		in, ok := incoming.([]interface{})
		if !ok || len(in) != len(t) {
			return target
		}
		for i := range t {
			t[i] = mergeValue(t[i], in[i])
		}
		return t
	default:
		return target
	}
}

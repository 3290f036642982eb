package executor

import (
	"strings"

	"github.com/gqlfederate/gateway/planner"
)

// walkLeaves descends node along path, expanding list segments
// element-wise and applying a concrete-type filter (checked against the
// node's own "__typename", present because the planner always injects a
// plain __typename selection alongside every polymorphic inline fragment)
// at any segment that carries one. visit is called once per terminal
// object reached; a node excluded by a filter, or missing an expected
// field, is silently pruned rather than visited.
func walkLeaves(node interface{}, path []planner.PathSegment, visit func(obj map[string]interface{})) {
	if len(path) == 0 {
		if obj, ok := node.(map[string]interface{}); ok {
			visit(obj)
		}
		return
	}

	obj, ok := node.(map[string]interface{})
	if !ok {
		return
	}

	seg := path[0]
	rest := path[1:]

	if seg.ConcreteType != "" {
		if tn, _ := obj["__typename"].(string); tn != seg.ConcreteType {
			return
		}
	}

	var next interface{} = obj
	if seg.Field != "" {
		v, exists := obj[seg.Field]
		if !exists {
			return
		}
		next = v
	}

	if seg.IsList {
		list, ok := next.([]interface{})
		if !ok {
			return
		}
		for _, elem := range list {
			walkLeaves(elem, rest, visit)
		}
		return
	}

	walkLeaves(next, rest, visit)
}

// representationFlag records, for one candidate slot found during the
// first Flatten walk, whether it produced a representation ("keys") or
// was excluded by the typename filter ("skip"); spec.md §4.4 step 5:
// "skipped slots consume a flag but no value."
type representationFlag bool

const (
	flagSkip representationFlag = false
	flagKeys representationFlag = true
)

// collectRepresentations runs Flatten step 1: walks the accumulator along
// path, and at each terminal object extracts every `__key{prefix}_`-tagged
// entry (re-keyed without the prefix), testing the tagged typename against
// entityType when the group targets one concrete type.
func collectRepresentations(root map[string]interface{}, path []planner.PathSegment, prefix int, entityType string) (representations []map[string]interface{}, flags []representationFlag) {
	tagPrefix := keyTag(prefix)
	typenameKey := tagPrefix + "__typename"

	walkLeaves(root, path, func(obj map[string]interface{}) {
		keys := map[string]interface{}{}
		for k, v := range obj {
			if strings.HasPrefix(k, tagPrefix) {
				keys[strings.TrimPrefix(k, tagPrefix)] = v
			}
		}
		if len(keys) == 0 {
			flags = append(flags, flagSkip)
			return
		}
		if entityType != "" {
			if tn, _ := obj[typenameKey].(string); tn != "" && tn != entityType {
				flags = append(flags, flagSkip)
				return
			}
		}
		representations = append(representations, keys)
		flags = append(flags, flagKeys)
	})

	return representations, flags
}

// mergeEntities runs Flatten step 5: walks the accumulator along path
// again, in the same order collectRepresentations did, pairing each
// "keys"-flagged slot with the next entity result and merging it in,
// object into object.
func mergeEntities(root map[string]interface{}, path []planner.PathSegment, flags []representationFlag, results []interface{}) {
	i := 0
	idx := 0
	walkLeaves(root, path, func(obj map[string]interface{}) {
		if idx >= len(flags) {
			return
		}
		flag := flags[idx]
		idx++
		if flag == flagSkip {
			return
		}
		if i >= len(results) {
			return
		}
		result, ok := results[i].(map[string]interface{})
		i++
		if !ok {
			return
		}
		for k, v := range result {
			if existing, has := obj[k]; has {
				obj[k] = mergeValue(existing, v)
			} else {
				obj[k] = v
			}
		}
	})
}

func keyTag(prefix int) string {
	return "__key" + itoa(prefix) + "_"
}

// itoa avoids pulling in strconv for a single always-non-negative
// conversion already bounded by the planner's prefix counter.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

package executor

import "github.com/gqlfederate/gateway/ast"

// shape projects the accumulator's data down to exactly what the client's
// own selection set asked for, per spec.md §3's "merges the results into
// one response that obeys the shape of the original query." This also
// drops the planner's internal `__key{prefix}_…` bookkeeping fields, which
// must never leak into a client-visible response (spec.md §4.3 Open
// Questions: "must not leak to upstream queries" — the same holds for the
// response sent back downstream to the client).
func shape(data map[string]interface{}, ss *ast.SelectionSet, doc *ast.Document, vars map[string]interface{}) map[string]interface{} {
	if data == nil || ss == nil {
		return data
	}
	out := map[string]interface{}{}
	shapeInto(out, data, ss, doc, vars)
	return out
}

func shapeInto(out, m map[string]interface{}, ss *ast.SelectionSet, doc *ast.Document, vars map[string]interface{}) {
	for _, sel := range ss.Selections {
		if !shouldIncludeSelection(sel.Directives, vars) {
			continue
		}
		switch {
		case sel.FragmentSpread != "":
			if frag, ok := doc.Fragments[sel.FragmentSpread]; ok {
				if typeConditionMatches(frag.TypeCondition, m) {
					shapeInto(out, m, frag.SelectionSet, doc, vars)
				}
			}
		case sel.InlineFragment:
			if typeConditionMatches(sel.TypeCondition, m) {
				shapeInto(out, m, sel.SelectionSet, doc, vars)
			}
		case sel.Name == "__typename":
			out[sel.ResponseKey()] = m["__typename"]
		default:
			val, ok := m[sel.Name]
			if !ok {
				continue
			}
			out[sel.ResponseKey()] = shapeValue(val, sel.SelectionSet, doc, vars)
		}
	}
}

func shapeValue(value interface{}, ss *ast.SelectionSet, doc *ast.Document, vars map[string]interface{}) interface{} {
	if ss == nil {
		return value
	}
	switch v := value.(type) {
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = shapeValue(elem, ss, doc, vars)
		}
		return out
	case map[string]interface{}:
		if v == nil {
			return nil
		}
		inner := map[string]interface{}{}
		shapeInto(inner, v, ss, doc, vars)
		return inner
	default:
		return value
	}
}

// typeConditionMatches reports whether an inline fragment or fragment
// spread's type condition applies to m. A missing __typename (the field was
// never requested from upstream for this object) fails open, since the
// planner only ever builds fragments the composed schema already proved
// reachable for this position.
func typeConditionMatches(typeCondition string, m map[string]interface{}) bool {
	if typeCondition == "" {
		return true
	}
	tn, ok := m["__typename"].(string)
	if !ok {
		return true
	}
	return tn == typeCondition
}

func shouldIncludeSelection(dirs []ast.Directive, vars map[string]interface{}) bool {
	include := true
	for _, d := range dirs {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		var v bool
		if arg, ok := d.Args["if"]; ok {
			switch arg.Kind {
			case ast.BooleanValue:
				v, _ = arg.Raw.(bool)
			case ast.VariableValue:
				if vv, ok := vars[arg.Variable]; ok {
					v, _ = vv.(bool)
				}
			}
		}
		if d.Name == "skip" && v {
			include = false
		}
		if d.Name == "include" && !v {
			include = false
		}
	}
	return include
}

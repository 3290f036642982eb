package planner

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// Explain renders a plan tree as indented plain text, for the /debug/plan
// admin endpoint and for planner tests asserting on shape. Grounded on
// federation/planner.go's printPlan/printSelections recursion, generalized
// from its two fixed levels (root Plan, then After) to the gateway's
// arbitrarily nested Sequence/Parallel/Fetch/Flatten tree.
func Explain(n *Node) string {
	var b strings.Builder
	explainNode(&b, n, 0)
	return b.String()
}

func explainNode(b *strings.Builder, n *Node, level int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", level)
	switch n.Kind {
	case Sequence, Parallel:
		fmt.Fprintf(b, "%s%s\n", indent, n.Kind)
		for _, c := range n.Children {
			explainNode(b, c, level+1)
		}
	case Introspection:
		fmt.Fprintf(b, "%sIntrospection %s\n", indent, n.Selection.ResponseKey())
	case Fetch:
		fmt.Fprintf(b, "%sFetch service=%s vars=%v\n", indent, n.Service, n.Variables)
		fmt.Fprintf(b, "%s  %s\n", indent, n.QueryText)
	case Flatten:
		fmt.Fprintf(b, "%sFlatten service=%s path=%s key=__key%d_ type=%s vars=%v\n",
			indent, n.Service, explainPath(n.ResponsePath), n.KeyPrefix, n.EntityType, n.Variables)
		fmt.Fprintf(b, "%s  %s\n", indent, n.QueryText)
	}
}

func explainPath(path []PathSegment) string {
	var parts []string
	for _, seg := range path {
		s := seg.Field
		if seg.ConcreteType != "" {
			s = fmt.Sprintf("<%s>", seg.ConcreteType)
		}
		if seg.IsList {
			s += "[]"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}

// ExplainSubscribe renders a subscription plan: each upstream fetch it
// opens, plus its post-event plan tree, if any.
func ExplainSubscribe(sp *SubscribePlan) string {
	var b strings.Builder
	for _, f := range sp.Fetches {
		fmt.Fprintf(&b, "Subscribe service=%s vars=%v\n", f.Service, f.Variables)
		fmt.Fprintf(&b, "  %s\n", f.QueryText)
	}
	if sp.PostEvent != nil {
		b.WriteString("PostEvent\n")
		explainNode(&b, sp.PostEvent, 1)
	}
	return b.String()
}

// dumpVariables renders a request's variable bindings for debug logging,
// using spew rather than encoding/json so cyclic or unexported-field
// values (as may appear in upstream SDK response structs during manual
// debugging sessions) never panic the admin endpoint.
func dumpVariables(vars map[string]interface{}) string {
	return spew.Sdump(vars)
}

// Package planner turns a validated executable document into a plan tree
// the executor can run against a composed schema, per spec.md §3's "Plan
// tree" data model and §4.3's planning algorithm. Grounded on
// federation/planner.go's planObject/planUnion/plan recursion, generalized
// from thunder's single non-polymorphic "_federation" hop into the spec's
// prefix-tagged, multi-service fetch-entity groups and layered entity loop.
package planner

import "github.com/gqlfederate/gateway/ast"

// NodeKind tags the variant of a Node.
type NodeKind int

const (
	Sequence NodeKind = iota
	Parallel
	Introspection
	Fetch
	Flatten
)

func (k NodeKind) String() string {
	switch k {
	case Sequence:
		return "Sequence"
	case Parallel:
		return "Parallel"
	case Introspection:
		return "Introspection"
	case Fetch:
		return "Fetch"
	case Flatten:
		return "Flatten"
	default:
		return "Unknown"
	}
}

// PathSegment is one step of a response path: a field name, whether that
// field is a list, and an optional concrete-type filter used when the
// field's static type is abstract (interface/union).
type PathSegment struct {
	Field        string
	IsList       bool
	ConcreteType string // "" unless this segment sits behind a polymorphic position
}

// Node is one node of the plan tree. Only the fields relevant to Kind are
// populated; this mirrors federation.Plan's single-struct-many-kinds shape
// rather than a Go interface per variant, since the executor dispatches on
// Kind exactly once per node (spec.md §4.4 "Node dispatch").
type Node struct {
	Kind NodeKind

	// Sequence / Parallel.
	Children []*Node

	// Introspection.
	Selection *ast.Selection

	// Fetch and Flatten.
	Service      string
	QueryText    string
	Variables    []string // names of document variables this sub-request references
	EntityType   string   // concrete type name this fetch/flatten resolves, if entity-shaped
	ResponsePath []PathSegment
	KeyPrefix    int // Flatten only: the `__key{prefix}_` tag used to extract representations
}

// SubscribeFetch is one upstream subscription a Subscribe plan opens.
type SubscribeFetch struct {
	Service   string
	QueryText string
	Variables []string
}

// SubscribePlan is the top-level plan for a subscription operation: one or
// more upstream subscriptions, multiplexed, each emission optionally run
// through a post-event plan tree before being forwarded (spec.md §3
// "Subscribe plan").
type SubscribePlan struct {
	Fetches   []*SubscribeFetch
	PostEvent *Node
}

// flattenNode replaces any Sequence/Parallel node with exactly one child by that
// child, per spec.md §4.3 "Plan flattening".
func flattenNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	for i, c := range n.Children {
		n.Children[i] = flattenNode(c)
	}
	if (n.Kind == Sequence || n.Kind == Parallel) && len(n.Children) == 1 {
		return n.Children[0]
	}
	return n
}

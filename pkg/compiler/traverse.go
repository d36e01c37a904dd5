// classifier/pkg/compiler/traverse.go

package compiler

// Walk visits node and every node below it depth first, parents before
// children. Returning false from visit skips the children of that node.
func Walk(node *QueryNode, visit func(*QueryNode) bool) {
	if node == nil || !visit(node) {
		return
	}
	for _, c := range node.Clauses {
		Walk(c.Node, visit)
	}
}

// leafFields returns the fields bound by the leaves below node.
func leafFields(node *QueryNode) map[string]struct{} {
	fields := make(map[string]struct{})
	Walk(node, func(n *QueryNode) bool {
		if n.Kind != KindBoolean && n.Kind != KindMatchAll {
			fields[n.Field] = struct{}{}
		}
		return true
	})
	return fields
}

// simplify collapses boolean nodes that hold a single optional or required
// clause into that clause's node. Prohibited-only nodes are kept as is.
func simplify(node *QueryNode) *QueryNode {
	if node == nil || node.Kind != KindBoolean {
		return node
	}
	for i := range node.Clauses {
		node.Clauses[i].Node = simplify(node.Clauses[i].Node)
	}
	if len(node.Clauses) == 1 && node.Clauses[0].Occur != MustNot {
		return node.Clauses[0].Node
	}
	return node
}

// Package depgraph maintains the dependency graph between formula columns:
// a set of edges (out_node, in_node, relation) meaning "out_node depends on
// in_node via relation", plus the iterative invalidation walk that turns a
// change to one node's rows into the full set of dirty (node, rows) pairs
// that must be recomputed.
//
// The walk is an explicit work-stack loop rather than recursion, since long
// dependency chains would otherwise overflow the call stack.
package depgraph

import (
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/relation"
)

// Edge connects two Nodes via a Relation: Out depends on In.
type Edge struct {
	Out ids.Node
	In  ids.Node
	Rel relation.Relation
}

// DirtyMap accumulates, per dirty node, either a concrete dirty row set or
// ids.AllRows(). It is the recompute_map of invalidate_deps.
type DirtyMap map[ids.Node]ids.Rows

// Graph is the complete dependency graph for one engine instance.
type Graph struct {
	allEdges  map[Edge]struct{}
	byInNode  map[ids.Node]map[Edge]struct{}
	byOutNode map[ids.Node]map[Edge]struct{}
}

// New returns an empty dependency graph.
func New() *Graph {
	return &Graph{
		allEdges:  make(map[Edge]struct{}),
		byInNode:  make(map[ids.Node]map[Edge]struct{}),
		byOutNode: make(map[ids.Node]map[Edge]struct{}),
	}
}

// AddEdge records that out depends on in via rel. Duplicate edges (same
// out/in/rel triple — Relation equality is by instance identity, which is
// why Composed and Reference relations are memoized) are no-ops, since the
// edge set is a set.
func (g *Graph) AddEdge(out, in ids.Node, rel relation.Relation) {
	edge := Edge{Out: out, In: in, Rel: rel}
	if _, exists := g.allEdges[edge]; exists {
		return
	}
	g.allEdges[edge] = struct{}{}
	addTo(g.byInNode, edge.In, edge)
	addTo(g.byOutNode, edge.Out, edge)
}

func addTo(m map[ids.Node]map[Edge]struct{}, node ids.Node, edge Edge) {
	set, ok := m[node]
	if !ok {
		set = make(map[Edge]struct{})
		m[node] = set
	}
	set[edge] = struct{}{}
}

// ClearOut removes every edge whose Out node is out — i.e. forgets all of
// out's current inputs — and tells each dropped relation to forget its
// state entirely (ResetAll). Called before a whole-column recompute, which
// rediscovers dependencies from scratch as the formula re-evaluates.
func (g *Graph) ClearOut(out ids.Node) {
	edges := g.byOutNode[out]
	delete(g.byOutNode, out)
	for edge := range edges {
		delete(g.allEdges, edge)
		if inSet, ok := g.byInNode[edge.In]; ok {
			delete(inSet, edge)
			if len(inSet) == 0 {
				delete(g.byInNode, edge.In)
			}
		}
		edge.Rel.ResetAll()
	}
}

// ResetInput tells every relation that node depends on (node's current
// inputs) to forget any state keyed on dirtyRows, just before those rows of
// node are recomputed.
func (g *Graph) ResetInput(node ids.Node, dirtyRows ids.Rows) {
	for edge := range g.byOutNode[node] {
		edge.Rel.ResetRows(dirtyRows)
	}
}

// OutEdges returns the set of nodes that node currently depends on (the
// in_node of every edge with node as Out), keyed for membership testing.
// Used by pkg/schedule to prefer recomputing nodes whose own inputs are not
// themselves dirty.
func (g *Graph) OutEdges(node ids.Node) map[ids.Node]struct{} {
	out := make(map[ids.Node]struct{}, len(g.byOutNode[node]))
	for edge := range g.byOutNode[node] {
		out[edge.In] = struct{}{}
	}
	return out
}

// RemoveNodeIfUnused drops node's own dependencies (ClearOut) and its entry
// in the dependents index if node has no remaining dependents. Returns true
// if the node was removed, false if it still has dependents and must be
// kept (e.g. a formula column that is about to be deleted, but something
// else still reads it until that something else is updated too).
func (g *Graph) RemoveNodeIfUnused(node ids.Node) bool {
	if dependents, ok := g.byInNode[node]; ok && len(dependents) > 0 {
		return false
	}
	g.ClearOut(node)
	delete(g.byInNode, node)
	return true
}

// RenameNode rewrites every edge that mentions old to mention new instead,
// in place: old's outgoing edges (old depends on X) and old's incoming
// edges (Y depends on old) both move over. Used when a column is renamed —
// the underlying dependency relationships are unchanged, only the node's
// name changed, so edges must follow rather than be dropped and
// rediscovered.
func (g *Graph) RenameNode(old, new ids.Node) {
	if old == new {
		return
	}
	for edge := range g.byOutNode[old] {
		renamed := Edge{Out: new, In: edge.In, Rel: edge.Rel}
		delete(g.allEdges, edge)
		g.allEdges[renamed] = struct{}{}
		if inSet, ok := g.byInNode[edge.In]; ok {
			delete(inSet, edge)
			inSet[renamed] = struct{}{}
		}
	}
	if outSet, ok := g.byOutNode[old]; ok {
		delete(g.byOutNode, old)
		g.byOutNode[new] = outSet
	}
	for edge := range g.byInNode[old] {
		renamed := Edge{Out: edge.Out, In: new, Rel: edge.Rel}
		delete(g.allEdges, edge)
		g.allEdges[renamed] = struct{}{}
		if outSet, ok := g.byOutNode[edge.Out]; ok {
			delete(outSet, edge)
			outSet[renamed] = struct{}{}
		}
	}
	if inSet, ok := g.byInNode[old]; ok {
		delete(g.byInNode, old)
		g.byInNode[new] = inSet
	}
}

// Invalidate propagates a change to dirtyNode's dirtyRows through the graph,
// filling dirty into DirtyMap for every transitively dependent node. If
// includeSelf is false, dirtyNode itself is not marked dirty (used when
// dirtyNode is a plain data column being edited directly rather than a
// formula recomputing).
//
// The walk uses an explicit stack rather than recursion, because dependency
// chains in real documents can be long enough to overflow the call stack.
func (g *Graph) Invalidate(dirtyNode ids.Node, dirtyRows ids.Rows, dirty DirtyMap, includeSelf bool) {
	type pending struct {
		node ids.Node
		rows ids.Rows
	}
	stack := []pending{{dirtyNode, dirtyRows}}

	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		if includeSelf {
			existing, hasExisting := dirty[cur.node]
			if hasExisting && existing.IsAll() {
				continue
			}
			if cur.rows.IsAll() {
				dirty[cur.node] = ids.AllRows()
				// A whole-column recompute rebuilds every dependency from
				// scratch as the formula re-evaluates each row, so any
				// edges recorded from a previous evaluation are stale.
				g.ClearOut(cur.node)
			} else {
				merged := existing
				if !hasExisting {
					merged = ids.NoRows()
				}
				added := merged.UnionInPlace(cur.rows)
				dirty[cur.node] = merged
				if added == 0 {
					// Nothing new: don't bother recursing into
					// dependents, they've already seen this.
					continue
				}
			}
		}
		includeSelf = true

		for edge := range g.byInNode[cur.node] {
			affected := edge.Rel.Affected(cur.rows)
			stack = append(stack, pending{edge.Out, affected})
		}
	}
}

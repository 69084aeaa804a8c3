// Package schedule implements the recomputation scheduler of spec.md §4.F:
// given a dirty map of (node -> rows) produced by pkg/depgraph.Invalidate, it
// drives recomputation to a fixed point, evaluating each dirty cell through
// pkg/formula, writing changed values back through pkg/column, coalescing
// the result into calc document actions via pkg/action.Summary, and further
// invalidating downstream dependents as values actually change.
package schedule

import (
	"fmt"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/depgraph"
	"github.com/kasuganosora/sheetengine/pkg/formula"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/relation"
)

// recomputeLimit bounds how many times a single node may be recomputed
// within one Recompute call. A formula graph with no true cycle always
// settles (each recompute either leaves dependents un-dirtied or the chain
// terminates at a node with no further dependents); a node that keeps
// getting re-dirtied past this many rounds is evidence of a genuine mutual
// recursion (spec.md S3's a = $b+1 / b = $a+1), and is reported as
// CircularReference instead of spinning forever.
const recomputeLimit = 50

// FormulaEntry describes one formula/trigger column's compiled body and the
// relation new reads from its cells should compose against (Identity for a
// reactive formula column, SingleRowIdentity for a trigger column per
// spec.md §4.A).
type FormulaEntry struct {
	Fn  formula.Func
	Rel relation.Relation
}

// Formulas resolves a node to its compiled formula, if it has one (data
// columns don't).
type Formulas interface {
	Formula(node ids.Node) (FormulaEntry, bool)
}

// SideEffectObserver is implemented by hosts (pkg/engine) that keep derived
// indexes in sync with row-level mutations. Formula side effects
// (lookupOrAddDerived) apply and roll back outside the host's normal
// document-action path, so Recompute reports each one back: committed
// actions so the host can dirty the new row's dependents, reverted inverses
// so stale lookup-index entries are dropped.
type SideEffectObserver interface {
	SideEffectApplied(a action.DocAction, dirty depgraph.DirtyMap)
	SideEffectReverted(a action.DocAction)
}

// AutoRemove is queued by pkg/formula.EvalContext.SetAutoRemove and drained
// after the pass.
type AutoRemove struct {
	Table ids.TableID
	Row   ids.RowID
}

// Result is what one Recompute pass produced: the calc document actions
// (already coalesced by column through action.Summary) and any rows queued
// for auto-removal.
type Result struct {
	CalcActions []action.DocAction
	// SideEffects are document actions a formula applied directly during
	// evaluation (currently only lookupOrAddDerived's row insertion) that
	// survived because the formula that produced them did not go on to
	// raise. They are calc-attributable like CalcActions but are not cell
	// updates, so they are kept separate rather than folded through
	// action.Summary.
	SideEffects []action.DocAction
	AutoRemoves []AutoRemove
}

// Recompute drains dirty to empty, recomputing every dirty cell in
// reverse-topological-ish order (nodes whose current inputs are not
// themselves dirty go first; true cycles are allowed and handled via
// recomputeLimit) and returns the resulting calc actions.
func Recompute(graph *depgraph.Graph, tables formula.TableSource, reg action.Registry, formulas Formulas, dirty depgraph.DirtyMap) (*Result, error) {
	summary := action.NewSummary()
	recomputeCount := make(map[ids.Node]int)
	var autoRemoves []AutoRemove
	var sideEffects []action.DocAction
	observer, _ := formulas.(SideEffectObserver)

	for len(dirty) > 0 {
		node := pickCandidate(graph, dirty)
		rows := dirty[node]
		delete(dirty, node)

		recomputeCount[node]++
		circular := recomputeCount[node] > recomputeLimit

		entry, hasFormula := formulas.Formula(node)
		if !hasFormula {
			// A plain data column was marked dirty directly (an edit, not a
			// recompute); there's nothing to evaluate, but dependents still
			// need to see the change, which Invalidate already queued when
			// the edit happened. Nothing further to do here.
			continue
		}

		table, err := tables.Table(node.Table)
		if err != nil {
			return nil, err
		}

		var rowList []ids.RowID
		if rows.IsAll() {
			rowList = table.RowIDs()
		} else {
			rowList = rows.Sorted()
		}

		graph.ResetInput(node, rows)

		for _, row := range rowList {
			oldVal, _ := table.Get(node.Col, row)

			if circular {
				writeResult(table, summary, node, row, oldVal, &formula.ErrCircularReference{Node: node, Row: row})
				continue
			}

			ctx := formula.NewEvalContext(graph, tables, node, row, entry.Rel)
			newVal, evalErr := formula.Eval(ctx, entry.Fn)

			if evalErr != nil {
				for _, inv := range ctx.SubBundle().Rollback() {
					if err := action.Apply(reg, inv); err != nil {
						return nil, err
					}
					if observer != nil {
						observer.SideEffectReverted(inv)
					}
				}
				writeResult(table, summary, node, row, oldVal, evalErr)
				continue
			}

			committed := ctx.SubBundle().Actions()
			sideEffects = append(sideEffects, committed...)
			if observer != nil {
				for _, a := range committed {
					observer.SideEffectApplied(a, dirty)
				}
			}
			for _, req := range ctx.AutoRemoveRequests() {
				autoRemoves = append(autoRemoves, AutoRemove{Table: req.Table, Row: req.Row})
			}

			if valuesEqual(oldVal, newVal) {
				continue
			}
			if err := table.Set(node.Col, row, newVal); err != nil {
				return nil, err
			}
			summary.Record(node.Table, node.Col, row, oldVal, newVal)
			graph.Invalidate(node, ids.NewRows(row), dirty, false)
		}
	}

	return &Result{CalcActions: summary.FlushByColumn(), SideEffects: sideEffects, AutoRemoves: autoRemoves}, nil
}

// writeResult stores a wrapped formula/circular-reference error as the
// cell's boxed value, per spec.md §7 ("not fatal; stored in the cell").
func writeResult(table *column.Table, summary *action.Summary, node ids.Node, row ids.RowID, oldVal interface{}, err error) {
	boxed := column.RaisedException{Kind: errorKind(err), Message: err.Error()}
	_ = table.Set(node.Col, row, boxed)
	summary.Record(node.Table, node.Col, row, oldVal, boxed)
}

func errorKind(err error) string {
	if _, ok := err.(*formula.ErrCircularReference); ok {
		return "CircularReference"
	}
	return "FormulaError"
}

func valuesEqual(a, b interface{}) bool {
	// Boxed errors never compare equal to anything, including themselves by
	// value, the same way a freshly raised exception is always "new" even
	// if its message happens to repeat — this keeps error cells re-emitted
	// into the calc stream every time they recompute to the same error.
	if _, ok := a.(column.RaisedException); ok {
		return false
	}
	if _, ok := b.(column.RaisedException); ok {
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && sameType(a, b)
}

func sameType(a, b interface{}) bool {
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

// pickCandidate chooses a node from dirty whose current dependencies (the
// nodes it reads, per the graph's existing edges) are not themselves in
// dirty, per spec.md §4.F's "prefer nodes whose dependencies are not
// themselves dirty" heuristic; falls back to an arbitrary node if every
// candidate has a dirty dependency (a cycle).
func pickCandidate(graph *depgraph.Graph, dirty depgraph.DirtyMap) ids.Node {
	var fallback ids.Node
	first := true
	for node := range dirty {
		if first {
			fallback = node
			first = false
		}
		if !dependsOnDirty(graph, node, dirty) {
			return node
		}
	}
	return fallback
}

func dependsOnDirty(graph *depgraph.Graph, node ids.Node, dirty depgraph.DirtyMap) bool {
	for dep := range graph.OutEdges(node) {
		if _, ok := dirty[dep]; ok {
			return true
		}
	}
	return false
}

// Package formula implements the evaluation context and dependency tracing
// described in spec.md §4.E: each formula cell is evaluated in its own
// context (node, row, relation), every read of a record attribute or
// lookup call composes the context's relation with the source's relation and
// records an edge, and any lookupOrAddDerived side effects are captured in a
// tentative sub-bundle that is committed or rolled back depending on whether
// the formula raises.
package formula

import (
	"fmt"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/depgraph"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/relation"
)

// TableSource resolves a table by id; pkg/docmodel.Model satisfies this.
type TableSource interface {
	Table(id ids.TableID) (*column.Table, error)
}

// Func is a compiled formula body: the engine does not implement a general
// expression language (spec.md §1 explicitly excludes the full formula
// built-in function library), so a formula is an injected callback that
// reads through *EvalContext and returns the cell's new value.
type Func func(ctx *EvalContext) (interface{}, error)

// EvalContext is the scope active while evaluating one formula cell. A fresh
// one is created by NewEvalContext for each cell (pkg/schedule makes one per
// row) and dropped afterwards; contexts are not stacked or nested.
type EvalContext struct {
	Graph  *depgraph.Graph
	Tables TableSource

	Node ids.Node
	Row  ids.RowID
	Rel  relation.Relation

	sub *action.SubBundle

	autoRemove []autoRemoveRequest
}

type autoRemoveRequest struct {
	Table ids.TableID
	Row   ids.RowID
}

// NewEvalContext starts a fresh evaluation scope for node at row, using rel
// as the context relation new reads compose against (normally
// relation.NewIdentity(node.Table), or SingleRowIdentity for trigger
// columns).
func NewEvalContext(graph *depgraph.Graph, tables TableSource, node ids.Node, row ids.RowID, rel relation.Relation) *EvalContext {
	return &EvalContext{Graph: graph, Tables: tables, Node: node, Row: row, Rel: rel, sub: action.NewSubBundle()}
}

// SubBundle exposes the tentative sub-bundle accumulated by any side
// effecting calls (lookupOrAddDerived) made during this evaluation.
func (c *EvalContext) SubBundle() *action.SubBundle { return c.sub }

// RecordSideEffect appends an already-applied document action (e.g. from
// lookupOrAddDerived inserting a row) to this evaluation's tentative
// sub-bundle, so it can be rolled back if the formula goes on to raise.
func (c *EvalContext) RecordSideEffect(a action.DocAction) { c.sub.Record(a) }

// SetAutoRemove queues this evaluation's own row for deletion at the end of
// the recompute pass if flag is true (spec.md §4.F's setAutoRemove). Queued
// requests are drained by pkg/schedule after the pass completes, never
// mid-pass, since deleting the row out from under an in-progress recompute
// would invalidate row positions other cells in the same pass still expect.
func (c *EvalContext) SetAutoRemove(flag bool) {
	if !flag {
		return
	}
	c.autoRemove = append(c.autoRemove, autoRemoveRequest{Table: c.Node.Table, Row: c.Row})
}

// AutoRemoveRequests returns the rows queued via SetAutoRemove during this
// evaluation.
func (c *EvalContext) AutoRemoveRequests() []autoRemoveRequest { return c.autoRemove }

// readNode records that c.Node depends on sourceNode via the composition of
// c.Rel with sourceRel, then returns sourceNode's Affected-compatible
// relation for further chaining by the caller (used when a RecordSet's
// .Attr access needs to compose yet another step, e.g. rec.school.name).
func (c *EvalContext) readNode(sourceNode ids.Node, sourceRel relation.Relation) relation.Relation {
	effective := c.Rel.Compose(sourceRel)
	c.Graph.AddEdge(c.Node, sourceNode, effective)
	return effective
}

// Record is one row of one table, read through the current evaluation
// context. It is the Go analogue of records.py's Record: attribute access
// through Attr both returns a value and records a dependency edge.
type Record struct {
	ctx   *EvalContext
	Table ids.TableID
	Row   ids.RowID
	// rel is the relation this Record was reached through (Identity for
	// rec.X on the row's own table, Reference for rec.other.X), so that a
	// further .Attr composes correctly instead of always assuming Identity.
	rel relation.Relation
}

// NewRecord returns the record at row of table, reached via rel (pass
// relation.NewIdentity(table) for the row currently being evaluated).
func NewRecord(ctx *EvalContext, table ids.TableID, row ids.RowID, rel relation.Relation) *Record {
	return &Record{ctx: ctx, Table: table, Row: row, rel: rel}
}

// IsValid reports whether the record is not the null record (row 0).
func (r *Record) IsValid() bool { return r.Row != ids.NoRow }

// Attr reads column colID of r, recording the dependency edge
// (ctx.Node -> (r.Table, colID)) via the composition of ctx.Rel with r.rel,
// and returns the raw stored value (an ids.RowID for Ref columns, a
// []ids.RowID for RefList, etc. — following a Ref into another Record is
// Follow, not Attr).
func (r *Record) Attr(colID ids.ColID) (interface{}, error) {
	sourceNode := ids.Node{Table: r.Table, Col: colID}
	r.ctx.readNode(sourceNode, r.rel)
	t, err := r.ctx.Tables.Table(r.Table)
	if err != nil {
		return nil, err
	}
	val, err := t.Get(colID, r.Row)
	if err != nil {
		return nil, err
	}
	if exc, ok := val.(column.RaisedException); ok {
		return nil, exc
	}
	return val, nil
}

// Follow reads a Ref column colID and returns the Record it points to
// (possibly the null record at row 0), composing a relation.Reference for
// chained attribute reads (rec.school.name) to use.
func (r *Record) Follow(colID ids.ColID, refCol relation.Relation, dstTable ids.TableID) (*Record, error) {
	v, err := r.Attr(colID)
	if err != nil {
		return nil, err
	}
	target, _ := v.(ids.RowID)
	composed := r.rel.Compose(refCol)
	return NewRecord(r.ctx, dstTable, target, composed), nil
}

// RecordSet is a lazy, restartable sequence of rows of one table, reached
// via a relation the same way Record is — lookupRecords, or following a
// RefList, returns one of these. The row list is fixed when the set is
// built, and each Iter call re-walks it. RecordSet itself records no
// dependency edge: edges come from the Attr calls the caller makes on the
// yielded Records, so a set whose rows are never read adds none.
type RecordSet struct {
	ctx   *EvalContext
	Table ids.TableID
	rel   relation.Relation
	rows  []ids.RowID
}

// NewRecordSet wraps rows (already resolved by the caller, e.g.
// pkg/lookup.Index.Query) as a RecordSet reached via rel.
func NewRecordSet(ctx *EvalContext, table ids.TableID, rows []ids.RowID, rel relation.Relation) *RecordSet {
	return &RecordSet{ctx: ctx, Table: table, rel: rel, rows: rows}
}

// Len returns the number of rows (len(Students.lookupRecords(...)) in
// spec.md's S1 scenario).
func (s *RecordSet) Len() int { return len(s.rows) }

// Iter invokes fn once per row in order, wrapping each as a *Record reached
// via s.rel, restartable: a second Iter call re-walks the same row list.
func (s *RecordSet) Iter(fn func(*Record) error) error {
	for _, row := range s.rows {
		if err := fn(NewRecord(s.ctx, s.Table, row, s.rel)); err != nil {
			return err
		}
	}
	return nil
}

// Rows exposes the underlying row ids (e.g. for bulk attribute reads), not
// itself a dependency-recording operation — callers that read attributes off
// these rows must go through Record.Attr/Iter to record edges.
func (s *RecordSet) Rows() []ids.RowID {
	out := make([]ids.RowID, len(s.rows))
	copy(out, s.rows)
	return out
}

// ErrCircularReference is stored as a cell's value when a formula
// transitively reads the cell currently being evaluated (detected by
// pkg/schedule, not here; formula.go just defines the error type so both
// layers agree on its shape).
type ErrCircularReference struct {
	Node ids.Node
	Row  ids.RowID
}

func (e *ErrCircularReference) Error() string {
	return fmt.Sprintf("circular reference involving %s row %d", e.Node, e.Row)
}

package engine

import (
	"fmt"
	"strings"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/depgraph"
	"github.com/kasuganosora/sheetengine/pkg/formula"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/lookup"
)

// lookupEntry is one memoized lookup index plus the synthetic dependency
// node formula edges register against, per spec.md §4.D's "(target_table,
// lookup-id)" description — the node is purely a naming convention: the real
// invalidation work happens inside the index's QueryRelation.
type lookupEntry struct {
	idx  *lookup.Index
	node ids.Node
}

func lookupKey(target ids.TableID, keyCols []ids.ColID, orderBy ids.ColID) string {
	names := make([]string, len(keyCols))
	for i, c := range keyCols {
		names[i] = string(c)
	}
	return fmt.Sprintf("%s\x1f%s\x1f%s", target, strings.Join(names, ","), orderBy)
}

// LookupIndex returns the (lazily created, memoized) lookup index over
// target keyed by keyCols and optionally ordered by orderBy, plus the
// synthetic node a compiled formula must AddEdge its own node against (with
// idx.RelationFor(referringTable) as the edge's relation) to register the
// dependency, per spec.md §4.D. Called by a Compiler's compiled closures via
// the *Engine handed to Compile.
func (e *Engine) LookupIndex(target ids.TableID, keyCols []ids.ColID, orderBy ids.ColID) (*lookup.Index, ids.Node) {
	key := lookupKey(target, keyCols, orderBy)
	entry, ok := e.lookups[key]
	if !ok {
		idx := lookup.NewIndex(target, keyCols, orderBy)
		node := ids.Node{Table: target, Col: ids.ColID("$lookup#" + key)}
		entry = &lookupEntry{idx: idx, node: node}
		e.lookups[key] = entry
		e.lookupsByTable[target] = append(e.lookupsByTable[target], entry)
	}
	return entry.idx, entry.node
}

// syncLookupsForRow refreshes every lookup index registered over table with
// row's current key/order-by column values. Must run after the row's cells
// are written (AddRecord/UpdateRecord and their Bulk variants), so the index
// sees the post-write values.
func (e *Engine) syncLookupsForRow(table ids.TableID, row ids.RowID) {
	t, err := e.model.Table(table)
	if err != nil {
		return
	}
	for _, entry := range e.lookupsByTable[table] {
		keyValues := make([]interface{}, len(entry.idx.KeyCols))
		for i, col := range entry.idx.KeyCols {
			keyValues[i], _ = t.Get(col, row)
		}
		var orderValue interface{}
		if entry.idx.OrderBy != "" {
			orderValue, _ = t.Get(entry.idx.OrderBy, row)
		}
		entry.idx.UpdateRow(row, keyValues, orderValue)
	}
}

// LookupOrAddDerived is the one side-effecting formula built-in (spec.md
// §4.E): it queries the lookup index over target keyed by keyCols for
// keyValues, registering the same dependency a plain lookupRecords would,
// and if no row matches it inserts one carrying those key values. The
// insertion is recorded on ctx's tentative sub-bundle, so a raise later in
// the same evaluation rolls it back and the outer bundle keeps no trace of
// the row.
func (e *Engine) LookupOrAddDerived(ctx *formula.EvalContext, target ids.TableID, keyCols []ids.ColID, keyValues []interface{}) (ids.RowID, error) {
	idx, node := e.LookupIndex(target, keyCols, "")
	qrel := idx.RelationFor(ctx.Node.Table)
	qrel.Register(ctx.Row, idx.KeyFor(keyValues))
	ctx.Graph.AddEdge(ctx.Node, node, qrel)

	if rows := idx.Query(keyValues); len(rows) > 0 {
		return rows[0], nil
	}

	table, err := e.model.Table(target)
	if err != nil {
		return ids.NoRow, err
	}
	row := table.AllocateRowID()
	fields := make(map[ids.ColID]interface{}, len(keyCols))
	for i, col := range keyCols {
		if i < len(keyValues) {
			fields[col] = keyValues[i]
		}
	}
	add := action.DocAction{Name: action.AddRecord, Table: target, RowID: row, Fields: fields}
	if err := action.Apply(e.model, add); err != nil {
		return ids.NoRow, err
	}
	e.syncLookupsForRow(target, row)
	ctx.RecordSideEffect(add)
	return row, nil
}

// SideEffectApplied implements schedule.SideEffectObserver: a committed
// LookupOrAddDerived insertion dirties the new row's columns and every
// lookup registered over the table, exactly as if the row had arrived as a
// direct document action.
func (e *Engine) SideEffectApplied(a action.DocAction, dirty depgraph.DirtyMap) {
	switch a.Name {
	case action.AddRecord:
		e.touchRows(a.Table, []ids.RowID{a.RowID}, dirty)
	case action.BulkAddRecord:
		e.touchRows(a.Table, a.RowIDs, dirty)
	}
}

// SideEffectReverted implements schedule.SideEffectObserver: rolling back an
// insertion applies its RemoveRecord inverse outside the engine's normal
// action path, so the row must be dropped from the lookup indexes here or
// they would keep serving the phantom row.
func (e *Engine) SideEffectReverted(a action.DocAction) {
	switch a.Name {
	case action.RemoveRecord:
		e.removeLookupsForRow(a.Table, a.RowID)
	case action.BulkRemoveRecord:
		for _, row := range a.RowIDs {
			e.removeLookupsForRow(a.Table, row)
		}
	}
}

// removeLookupsForRow drops row from every lookup index registered over
// table. Must run before the row is actually deleted from the column
// storage, since a read after deletion returns type defaults rather than the
// row's true last values.
func (e *Engine) removeLookupsForRow(table ids.TableID, row ids.RowID) {
	for _, entry := range e.lookupsByTable[table] {
		entry.idx.RemoveRow(row)
	}
}

package engine

import (
	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/depgraph"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/schedule"
)

// ApplyUserActions is the engine's main entry point: it fills in missing
// AddRecord/BulkAddRecord field defaults, translates the submission into
// ground-truth document actions via pkg/useraction, recomputes every
// formula the edits touch via pkg/schedule, and folds the recompute's calc
// actions into the returned Bundle, per spec.md §4.G/§6.
//
// On any failure after translation, the partial bundle's Undo stream is
// replayed against the live model so the document ends up exactly as it was
// before the call, and the error is returned with a nil bundle.
func (e *Engine) ApplyUserActions(uas []action.DocAction) (*action.Bundle, error) {
	e.busy.Lock()
	defer e.busy.Unlock()

	if !e.done {
		return nil, &InvalidRequestError{Msg: "ApplyUserActions called before load_done"}
	}

	before := e.rowCounts()

	filled, err := e.fillDefaults(uas)
	if err != nil {
		return nil, err
	}

	// Calculate and RespondToRequests are consumed here rather than
	// translated: neither produces document actions, only extra dirty work
	// for the recompute pass below.
	extraDirty := make(depgraph.DirtyMap)
	translatable := make([]action.DocAction, 0, len(filled))
	for _, ua := range filled {
		switch ua.Name {
		case action.Calculate:
			e.markAllFormulasDirty(extraDirty)
		case action.RespondToRequests:
			e.deliverResponses(ua.Fields, extraDirty)
		default:
			translatable = append(translatable, ua)
		}
	}

	bundle, terr := e.translator.Translate(translatable)
	if terr != nil {
		e.rollback(bundle)
		return nil, &InvalidRequestError{Msg: terr.Error()}
	}

	dirty := e.collectDirty(bundle)
	for node, rows := range extraDirty {
		if cur, ok := dirty[node]; ok {
			dirty[node] = cur.Union(rows)
		} else {
			dirty[node] = rows
		}
	}

	result, rerr := e.recompute(dirty)
	if rerr != nil {
		e.rollback(bundle)
		return nil, &SchemaError{Msg: rerr.Error()}
	}

	for _, a := range result.SideEffects {
		bundle.AppendStored(a, false)
	}
	for _, a := range result.CalcActions {
		bundle.AppendStored(a, false)
	}

	for _, ar := range result.AutoRemoves {
		removeUA := action.DocAction{Name: action.RemoveRecord, Table: ar.Table, RowID: ar.Row}
		sub, serr := e.translator.Translate([]action.DocAction{removeUA})
		if serr != nil {
			continue // best-effort: an auto-remove racing with a concurrent edit is not fatal
		}
		sub.RetValues = nil // auto-removes are not caller-submitted; they contribute no retValues
		bundle.Merge(sub)
		subDirty := e.collectDirty(sub)
		subResult, srerr := e.recompute(subDirty)
		if srerr != nil {
			e.rollback(bundle)
			return nil, &SchemaError{Msg: srerr.Error()}
		}
		for _, a := range subResult.CalcActions {
			bundle.AppendStored(a, false)
		}
	}

	// Reassemble RetValues in submission order: Translate produced one entry
	// per translatable action; Calculate/RespondToRequests slot in as nil.
	rets := make([]interface{}, 0, len(filled))
	ti := 0
	for _, ua := range filled {
		switch ua.Name {
		case action.Calculate, action.RespondToRequests:
			rets = append(rets, nil)
		default:
			if ti < len(bundle.RetValues) {
				rets = append(rets, bundle.RetValues[ti])
				ti++
			}
		}
	}
	bundle.RetValues = rets

	if err := e.checkUndoConsistency(bundle, before); err != nil {
		e.rollback(bundle)
		return nil, err
	}

	if bundleHasSchemaAction(bundle) {
		e.version++
	}

	return bundle, nil
}

// rowCounts snapshots every table's current row count, used to detect a
// malformed Undo stream after a submission (spec.md §7's "internal schema
// inconsistent after undo").
func (e *Engine) rowCounts() map[ids.TableID]int {
	out := make(map[ids.TableID]int)
	for _, id := range e.model.TableIDs() {
		t, _ := e.model.Table(id)
		out[id] = len(t.RowIDs())
	}
	return out
}

// checkUndoConsistency replays bundle.Undo, compares every table's row count
// against before, then replays bundle.Stored (minus the undo) to restore the
// post-submission state, returning ErrInconsistentUndo if the round trip
// doesn't land back on the expected counts. This is the one place the
// engine actually exercises a submission's own Undo stream, rather than
// trusting it was built correctly.
func (e *Engine) checkUndoConsistency(bundle *action.Bundle, before map[ids.TableID]int) error {
	for _, inv := range bundle.Undo {
		if err := action.Apply(e.model, inv); err != nil {
			return &ErrInconsistentUndo{Msg: err.Error()}
		}
	}
	after := e.rowCounts()
	mismatch := len(after) != len(before)
	if !mismatch {
		for id, n := range before {
			if after[id] != n {
				mismatch = true
				break
			}
		}
	}
	// Replay forward regardless, to restore the post-submission state the
	// caller expects to see (Undo was exercised purely as a check).
	for _, a := range bundle.Stored {
		if err := action.Apply(e.model, a); err != nil {
			return &ErrInconsistentUndo{Msg: err.Error()}
		}
	}
	if mismatch {
		return &ErrInconsistentUndo{Msg: "row counts after undo replay did not match pre-submission state"}
	}
	return nil
}

// rollback applies bundle's Undo stream to cancel out whatever partial work
// it recorded, best-effort (the bundle up to a translation failure is always
// a strict prefix of a valid submission, so its Undo is well-formed even
// though the submission as a whole never completed).
func (e *Engine) rollback(bundle *action.Bundle) {
	if bundle == nil {
		return
	}
	for _, inv := range bundle.Undo {
		_ = action.Apply(e.model, inv)
	}
}

func bundleHasSchemaAction(bundle *action.Bundle) bool {
	names := schemaActionNames()
	for _, a := range bundle.Stored {
		if _, ok := names[a.Name]; ok {
			return true
		}
	}
	return false
}

// fillDefaults computes a value for every field an AddRecord/BulkAddRecord
// leaves unset on a column that declares a default-value expression
// (column.Column.DefaultFormulaText), per spec.md §4.H. Evaluation happens
// here rather than in pkg/useraction to avoid a pkg/useraction -> pkg/engine
// import cycle (useraction must stay ignorant of how defaults compile).
func (e *Engine) fillDefaults(uas []action.DocAction) ([]action.DocAction, error) {
	for i := range uas {
		a := &uas[i]
		switch a.Name {
		case action.AddRecord:
			table, err := e.model.Table(a.Table)
			if err != nil {
				return nil, &SchemaError{Msg: err.Error()}
			}
			if a.Fields == nil {
				a.Fields = make(map[ids.ColID]interface{})
			}
			for _, col := range table.Columns() {
				if col.Kind != column.KindData || col.DefaultFormulaText == "" {
					continue
				}
				if _, has := a.Fields[col.ColID]; has {
					continue
				}
				if e.defaults == nil {
					continue
				}
				v, err := e.defaults.Default(a.Table, col.ColID, col.DefaultFormulaText, a.Fields)
				if err != nil {
					return nil, &SchemaError{Msg: err.Error()}
				}
				a.Fields[col.ColID] = v
			}
		case action.BulkAddRecord:
			table, err := e.model.Table(a.Table)
			if err != nil {
				return nil, &SchemaError{Msg: err.Error()}
			}
			if a.ColValues == nil {
				a.ColValues = make(map[ids.ColID][]interface{})
			}
			n := len(a.RowIDs)
			for _, col := range table.Columns() {
				if col.Kind != column.KindData || col.DefaultFormulaText == "" {
					continue
				}
				if _, has := a.ColValues[col.ColID]; has {
					continue
				}
				if e.defaults == nil {
					continue
				}
				vals := make([]interface{}, n)
				for row := range vals {
					fields := make(map[ids.ColID]interface{}, len(a.ColValues))
					for c, cv := range a.ColValues {
						if row < len(cv) {
							fields[c] = cv[row]
						}
					}
					v, err := e.defaults.Default(a.Table, col.ColID, col.DefaultFormulaText, fields)
					if err != nil {
						return nil, &SchemaError{Msg: err.Error()}
					}
					vals[row] = v
				}
				a.ColValues[col.ColID] = vals
			}
		}
	}
	return uas, nil
}

// collectDirty seeds a depgraph.DirtyMap from every direct document action
// in bundle (bundle.Stored contains only direct actions at the point
// ApplyUserActions calls this, before recompute's calc actions are folded
// in), syncing lookup indexes and rebuilding reference relations for every
// touched table along the way.
func (e *Engine) collectDirty(bundle *action.Bundle) depgraph.DirtyMap {
	dirty := make(depgraph.DirtyMap)
	touched := make(map[ids.TableID]struct{})

	for _, a := range bundle.Stored {
		touched[a.Table] = struct{}{}
		switch a.Name {
		case action.AddRecord:
			e.touchRows(a.Table, []ids.RowID{a.RowID}, dirty)
		case action.BulkAddRecord:
			e.touchRows(a.Table, a.RowIDs, dirty)
		case action.UpdateRecord:
			for col := range a.Fields {
				e.touchCol(a.Table, col, ids.NewRows(a.RowID), dirty)
			}
		case action.BulkUpdateRecord:
			rows := ids.RowsFromSlice(a.RowIDs)
			for col := range a.ColValues {
				e.touchCol(a.Table, col, rows, dirty)
			}
		case action.RemoveRecord:
			e.touchRemoved(a.Table, []ids.RowID{a.RowID}, dirty)
		case action.BulkRemoveRecord:
			e.touchRemoved(a.Table, a.RowIDs, dirty)
		case action.ReplaceTableData:
			e.touchWholeTable(a.Table, dirty)
		case action.AddColumnAction:
			if a.Kind != column.KindData {
				e.compileAndMark(a.Table, a.Col, a.Kind, a.FormulaText, dirty)
			}
		case action.ModifyColumnAction:
			node := ids.Node{Table: a.Table, Col: a.Col}
			if a.Kind != column.KindData {
				e.compileAndMark(a.Table, a.Col, a.Kind, a.FormulaText, dirty)
			} else {
				delete(e.formulas, node)
				dirty[node] = ids.AllRows()
				e.graph.Invalidate(node, ids.AllRows(), dirty, false)
			}
		case action.RemoveColumnAction:
			node := ids.Node{Table: a.Table, Col: a.Col}
			delete(e.formulas, node)
			e.graph.RemoveNodeIfUnused(node)
		case action.RenameColumnAction:
			old := ids.Node{Table: a.Table, Col: a.Col}
			neu := ids.Node{Table: a.Table, Col: a.NewCol}
			e.graph.RenameNode(old, neu)
			if fe, ok := e.formulas[old]; ok {
				delete(e.formulas, old)
				e.formulas[neu] = fe
			}
		}
	}

	for table := range touched {
		e.rebuildReferencesForTable(table)
	}
	return dirty
}

func (e *Engine) touchRows(table ids.TableID, rows []ids.RowID, dirty depgraph.DirtyMap) {
	t, err := e.model.Table(table)
	if err != nil {
		return
	}
	for _, row := range rows {
		e.syncLookupsForRow(table, row)
		for _, col := range t.Columns() {
			node := ids.Node{Table: table, Col: col.ColID}
			e.graph.Invalidate(node, ids.NewRows(row), dirty, col.Kind != column.KindData)
		}
		for _, entry := range e.lookupsByTable[table] {
			e.graph.Invalidate(entry.node, ids.NewRows(row), dirty, false)
		}
	}
}

func (e *Engine) touchCol(table ids.TableID, col ids.ColID, rows ids.Rows, dirty depgraph.DirtyMap) {
	node := ids.Node{Table: table, Col: col}
	e.graph.Invalidate(node, rows, dirty, false)
	if !rows.IsAll() {
		rows.Each(func(row ids.RowID) { e.syncLookupsForRow(table, row) })
	}
	for _, entry := range e.lookupsByTable[table] {
		e.graph.Invalidate(entry.node, rows, dirty, false)
	}
}

func (e *Engine) touchRemoved(table ids.TableID, rows []ids.RowID, dirty depgraph.DirtyMap) {
	t, err := e.model.Table(table)
	if err != nil {
		return
	}
	for _, row := range rows {
		for _, col := range t.Columns() {
			node := ids.Node{Table: table, Col: col.ColID}
			e.graph.Invalidate(node, ids.NewRows(row), dirty, false)
		}
		for _, entry := range e.lookupsByTable[table] {
			e.graph.Invalidate(entry.node, ids.NewRows(row), dirty, false)
		}
		e.removeLookupsForRow(table, row)
	}
}

func (e *Engine) touchWholeTable(table ids.TableID, dirty depgraph.DirtyMap) {
	t, err := e.model.Table(table)
	if err != nil {
		return
	}
	for _, col := range t.Columns() {
		node := ids.Node{Table: table, Col: col.ColID}
		dirty[node] = ids.AllRows()
		e.graph.Invalidate(node, ids.AllRows(), dirty, true)
	}
	for _, row := range t.RowIDs() {
		e.syncLookupsForRow(table, row)
	}
	for _, entry := range e.lookupsByTable[table] {
		e.graph.Invalidate(entry.node, ids.AllRows(), dirty, false)
	}
}

func (e *Engine) compileAndMark(table ids.TableID, col ids.ColID, kind column.Kind, formulaText string, dirty depgraph.DirtyMap) {
	if e.compiler == nil {
		return
	}
	entry, err := e.compiler.Compile(e, table, col, kind, formulaText)
	if err != nil {
		return
	}
	node := ids.Node{Table: table, Col: col}
	e.formulas[node] = entry
	dirty[node] = ids.AllRows()
	e.graph.Invalidate(node, ids.AllRows(), dirty, true)
}

// markAllFormulasDirty seeds dirty with every compiled formula column over
// all rows — the Calculate user action's recompute-only pass, cheap because
// unchanged results produce no calc actions (action.Summary drops no-op
// deltas).
func (e *Engine) markAllFormulasDirty(dirty depgraph.DirtyMap) {
	for node := range e.formulas {
		e.graph.Invalidate(node, ids.AllRows(), dirty, true)
	}
}

// recompute wraps schedule.Recompute with this engine's graph/model/formula
// registry.
func (e *Engine) recompute(dirty depgraph.DirtyMap) (*schedule.Result, error) {
	return schedule.Recompute(e.graph, e.model, e.model, e, dirty)
}

package engine

import (
	"sort"
	"strings"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/docmodel"
	"github.com/kasuganosora/sheetengine/pkg/ids"
)

// FetchTable dumps table's current contents in row-id order. If formulas is
// false, formula/trigger columns are omitted from the result (a host asking
// only for stored data, e.g. before a save). query, if non-nil, restricts
// the dump to rows whose cells match every col:value pair given.
func (e *Engine) FetchTable(tableID ids.TableID, formulas bool, query map[ids.ColID]interface{}) (TableData, error) {
	if !e.done {
		return TableData{}, &InvalidRequestError{Msg: "fetch_table called before load_done"}
	}
	table, err := e.model.Table(tableID)
	if err != nil {
		return TableData{}, &SchemaError{Msg: err.Error()}
	}
	rows := table.SortedRowIDs()
	if len(query) > 0 {
		filtered := rows[:0:0]
		for _, row := range rows {
			match := true
			for col, want := range query {
				got, _ := table.Get(col, row)
				if got != want {
					match = false
					break
				}
			}
			if match {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	data := TableData{RowIDs: rows, Columns: make(map[ids.ColID][]interface{})}
	for _, col := range table.Columns() {
		if !formulas && col.Kind != column.KindData {
			continue
		}
		vals := make([]interface{}, len(rows))
		for i, row := range rows {
			vals[i], _ = table.Get(col.ColID, row)
		}
		data.Columns[col.ColID] = vals
	}
	return data, nil
}

// FetchMetaTables dumps every _grist_* metadata table.
func (e *Engine) FetchMetaTables() (map[ids.TableID]TableData, error) {
	if !e.metaLoaded {
		return nil, &InvalidRequestError{Msg: "fetch_meta_tables called before load_empty"}
	}
	out := make(map[ids.TableID]TableData)
	for _, id := range []ids.TableID{
		docmodel.MetaTables, docmodel.MetaColumns, docmodel.MetaViewSections,
		docmodel.MetaACLResources, docmodel.MetaACLRules, docmodel.MetaTriggers,
	} {
		data, err := e.FetchTable(id, true, nil)
		if err != nil {
			continue // a meta table that was never populated just comes back empty
		}
		out[id] = data
	}
	return out, nil
}

// FetchSnapshot dumps every table, metadata and user tables alike, as one
// bundle keyed by table id.
func (e *Engine) FetchSnapshot() (map[ids.TableID]TableData, error) {
	if !e.done {
		return nil, &InvalidRequestError{Msg: "fetch_snapshot called before load_done"}
	}
	out := make(map[ids.TableID]TableData)
	for _, id := range e.model.TableIDs() {
		data, err := e.FetchTable(id, true, nil)
		if err != nil {
			return nil, err
		}
		out[id] = data
	}
	return out, nil
}

// Autocomplete returns identifier completions for prefix in a formula
// attached to tableID: "rec." completes to the table's own column names,
// anything else completes against the fixed set of record/context roots a
// formula body may reference (the engine implements no general expression
// language, so this is name completion only, not type-aware member
// resolution).
func (e *Engine) Autocomplete(prefix string, tableID ids.TableID) ([]string, error) {
	table, err := e.model.Table(tableID)
	if err != nil {
		return nil, &SchemaError{Msg: err.Error()}
	}
	const recPrefix = "rec."
	if strings.HasPrefix(prefix, recPrefix) {
		partial := strings.TrimPrefix(prefix, recPrefix)
		var out []string
		for _, col := range table.Columns() {
			if strings.HasPrefix(string(col.ColID), partial) {
				out = append(out, recPrefix+string(col.ColID))
			}
		}
		sort.Strings(out)
		return out, nil
	}
	roots := []string{"rec.", "user.", "choice."}
	var out []string
	for _, r := range roots {
		if strings.HasPrefix(r, prefix) {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FindColFromValues returns every (table, column) whose stored contents
// overlap values by at least n distinct elements, searched across every
// user table or, if tableID is non-empty, just that one.
func (e *Engine) FindColFromValues(values []interface{}, n int, tableID ids.TableID) ([]ids.Node, error) {
	want := make(map[interface{}]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}

	tableIDs := e.model.UserTableIDs()
	if tableID != "" {
		tableIDs = []ids.TableID{tableID}
	}

	var matches []ids.Node
	for _, tid := range tableIDs {
		table, err := e.model.Table(tid)
		if err != nil {
			continue
		}
		for _, col := range table.Columns() {
			seen := make(map[interface{}]struct{})
			for _, row := range table.RowIDs() {
				v, _ := table.Get(col.ColID, row)
				if _, ok := want[v]; ok {
					seen[v] = struct{}{}
				}
			}
			if len(seen) >= n {
				matches = append(matches, ids.Node{Table: tid, Col: col.ColID})
			}
		}
	}
	return matches, nil
}

// GetFormulaError returns the boxed exception stored in table.col's cell at
// row, if any (ok is false for a cell holding an ordinary value).
func (e *Engine) GetFormulaError(tableID ids.TableID, colID ids.ColID, rowID ids.RowID) (error, bool) {
	table, err := e.model.Table(tableID)
	if err != nil {
		return &SchemaError{Msg: err.Error()}, true
	}
	v, err := table.Get(colID, rowID)
	if err != nil {
		return &SchemaError{Msg: err.Error()}, true
	}
	raised, ok := v.(column.RaisedException)
	if !ok {
		return nil, false
	}
	if raised.Kind == "CircularReference" {
		return &CircularReferenceError{Msg: raised.Message}, true
	}
	return &FormulaErrorKind{Msg: raised.Message}, true
}

// CreateMigrations computes the document actions that would recreate the
// engine's current schema from an empty document: every user table's
// AddTable followed by its AddColumn actions, in table/column declaration
// order. Persistence and historical schema diffing are out of scope (no
// on-disk schema baseline exists to diff against), so this always migrates
// from empty rather than from a prior stored version; allTables selects
// between every user table (true) or only tables with at least one row
// (false), a cheap way to skip obviously-unused scratch tables.
func (e *Engine) CreateMigrations(allTables bool) ([]action.DocAction, error) {
	var out []action.DocAction
	for _, tid := range e.model.UserTableIDs() {
		table, err := e.model.Table(tid)
		if err != nil {
			continue
		}
		if !allTables && len(table.RowIDs()) == 0 {
			continue
		}
		out = append(out, action.DocAction{Name: action.AddTableAction, Table: tid})
		for _, col := range table.Columns() {
			out = append(out, action.DocAction{
				Name: action.AddColumnAction, Table: tid, Col: col.ColID,
				Type: col.Type, Kind: col.Kind, FormulaText: col.FormulaText,
			})
		}
	}
	return out, nil
}

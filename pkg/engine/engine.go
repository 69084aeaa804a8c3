// Package engine is the lifecycle and sandbox loop of spec.md §4.K/§6: it
// owns one document's live table registry, dependency graph, lookup/
// reference indexes and compiled formula registry, gates entry points on a
// load sequence the way the teacher's Server gates command dispatch on
// isHandshakeDone, and turns a submission of user actions into a Bundle by
// driving pkg/useraction then pkg/schedule to a fixed point.
//
// An Engine is not safe for concurrent Dispatch calls: spec.md §5 describes
// a single-threaded request loop with one logical call in flight at a time.
// The only lock is the busy mutex, held for the whole of ApplyUserActions so
// concurrent submissions run one after another; the other entry points take
// no lock.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/config"
	"github.com/kasuganosora/sheetengine/pkg/depgraph"
	"github.com/kasuganosora/sheetengine/pkg/docmodel"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/schedule"
	"github.com/kasuganosora/sheetengine/pkg/useraction"
)

// ColumnDef describes one column to create while loading a table's schema,
// used by LoadTable (spec.md's load_table is silent on how schema arrives
// separately from load_meta_tables for user tables; this engine folds both
// into one call for simplicity).
type ColumnDef struct {
	ID                 ids.ColID
	Type               column.Type
	Kind               column.Kind
	FormulaText        string
	DefaultFormulaText string
}

// TableData is the row-major payload load_table/fetch_table exchange: a row
// id list plus one value slice per column, aligned by position.
type TableData struct {
	RowIDs  []ids.RowID
	Columns map[ids.ColID][]interface{}
}

// FormulaEntry mirrors schedule.FormulaEntry, re-exported so callers that
// only import pkg/engine don't also need pkg/schedule.
type FormulaEntry = schedule.FormulaEntry

// Compiler turns a column's declared formula text into a compiled body. The
// engine does not implement a general expression language (spec.md §1
// explicitly excludes the formula built-in function library): a real
// deployment's host compiles formula source into Go closures ahead of time,
// exactly as spec.md §4.E describes ("the engine only needs to evaluate a
// formula's body and capture the reads it performs"). Compiler is that seam.
type Compiler interface {
	// Compile returns the FormulaEntry for table.col's body. e is passed so
	// a compiled closure can reach engine-level lookup/reference indexes
	// (e.LookupIndex, e.ReferenceRelation) the way a real grist formula
	// reaches table.lookupRecords/rec.ref.attr.
	Compile(e *Engine, table ids.TableID, col ids.ColID, kind column.Kind, formulaText string) (FormulaEntry, error)
}

// DefaultValuer computes a missing field's default value for AddRecord,
// given the fields already supplied on the same record (so a default can
// depend on a sibling field, matching "evaluating each column's default
// formula" in spec.md §4.H without requiring the row to already exist).
type DefaultValuer interface {
	Default(table ids.TableID, col ids.ColID, formulaText string, fields map[ids.ColID]interface{}) (interface{}, error)
}

// Engine is one document's live state.
type Engine struct {
	cfg *config.Config

	busy sync.Mutex // serializes ApplyUserActions calls, not internal reentrancy

	loaded      bool
	metaLoaded  bool
	done        bool
	version     int

	model      *docmodel.Model
	graph      *depgraph.Graph
	translator *useraction.Translator

	compiler Compiler
	defaults DefaultValuer
	formulas map[ids.Node]FormulaEntry

	lookups     map[string]*lookupEntry
	lookupsByTable map[ids.TableID][]*lookupEntry

	references     map[ids.Node]*referenceEntry
	referencesByTable map[ids.TableID][]*referenceEntry

	pending *requestTable
}

// New returns an unloaded Engine; call LoadEmpty (or LoadMetaTables+LoadTable
// for a restored document) before ApplyUserActions/fetch_*.
func New(cfg *config.Config, compiler Compiler, defaults DefaultValuer) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Engine{
		cfg:      cfg,
		compiler: compiler,
		defaults: defaults,
		formulas: make(map[ids.Node]FormulaEntry),
		lookups:  make(map[string]*lookupEntry),
		lookupsByTable: make(map[ids.TableID][]*lookupEntry),
		references: make(map[ids.Node]*referenceEntry),
		referencesByTable: make(map[ids.TableID][]*referenceEntry),
		pending:  newRequestTable(),
	}
}

// Formula implements schedule.Formulas.
func (e *Engine) Formula(node ids.Node) (FormulaEntry, bool) {
	entry, ok := e.formulas[node]
	return entry, ok
}

// Table implements action.Registry/formula.TableSource by delegating to the
// live model.
func (e *Engine) Table(id ids.TableID) (*column.Table, error) { return e.model.Table(id) }

// LoadEmpty initializes a fresh empty document: the six _grist_* metadata
// tables and no user tables, per spec.md §6's load_empty().
func (e *Engine) LoadEmpty() error {
	e.model = docmodel.LoadEmpty()
	e.graph = depgraph.New()
	e.translator = useraction.NewTranslator(e.model)
	e.loaded = true
	e.metaLoaded = true
	e.done = false
	e.version = 1
	return nil
}

// LoadMetaTables loads the two metadata tables' contents into an already
// LoadEmpty'd document (used when restoring a saved snapshot rather than
// starting fresh). Must be called after LoadEmpty and before LoadTable/
// LoadDone.
func (e *Engine) LoadMetaTables(tables, columns TableData) error {
	if !e.loaded {
		return &InvalidRequestError{Msg: "load_meta_tables called before load_empty"}
	}
	if err := e.replaceRaw(docmodel.MetaTables, tables); err != nil {
		return err
	}
	if err := e.replaceRaw(docmodel.MetaColumns, columns); err != nil {
		return err
	}
	e.metaLoaded = true
	return nil
}

// LoadTable loads one user table's schema and contents, creating the table
// if it doesn't already exist. Must be called after LoadEmpty.
func (e *Engine) LoadTable(id ids.TableID, cols []ColumnDef, data TableData) error {
	if !e.loaded {
		return &InvalidRequestError{Msg: "load_table called before load_empty"}
	}
	table, err := e.model.Table(id)
	if err != nil {
		table, err = e.model.AddTable(id)
		if err != nil {
			return &SchemaError{Msg: err.Error()}
		}
	}
	for _, def := range cols {
		if _, err := table.Column(def.ID); err == nil {
			continue
		}
		col, err := table.AddColumn(def.ID, def.Type, def.Kind)
		if err != nil {
			return &SchemaError{Msg: err.Error()}
		}
		col.FormulaText = def.FormulaText
		col.DefaultFormulaText = def.DefaultFormulaText
	}
	return e.replaceRaw(id, data)
}

// replaceRaw wipes and reloads a table's row/column contents directly,
// bypassing the action/undo machinery (this is initial load, not a
// reversible user edit).
func (e *Engine) replaceRaw(id ids.TableID, data TableData) error {
	table, err := e.model.Table(id)
	if err != nil {
		return &SchemaError{Msg: err.Error()}
	}
	for _, row := range table.RowIDs() {
		table.RemoveRecord(row)
	}
	for _, row := range data.RowIDs {
		table.AddRecord(row)
	}
	for col, vals := range data.Columns {
		for i, row := range data.RowIDs {
			if i < len(vals) {
				if err := table.Set(col, row, vals[i]); err != nil {
					return &SchemaError{Msg: err.Error()}
				}
			}
		}
	}
	return nil
}

// LoadDone finishes loading: every formula/trigger column across every
// table is compiled (via Compiler) and marked dirty over its whole column,
// then a full recompute pass runs, per spec.md §6's load_done().
func (e *Engine) LoadDone() error {
	if !e.loaded {
		return &InvalidRequestError{Msg: "load_done called before load_empty"}
	}
	dirty := make(depgraph.DirtyMap)
	for _, tableID := range e.model.TableIDs() {
		table, _ := e.model.Table(tableID)
		for _, col := range table.Columns() {
			if col.Kind == column.KindData {
				continue
			}
			if err := e.compileColumn(tableID, col); err != nil {
				return err
			}
			node := ids.Node{Table: tableID, Col: col.ColID}
			dirty[node] = ids.AllRows()
		}
	}
	if _, err := e.recompute(dirty); err != nil {
		return err
	}
	e.done = true
	return nil
}

// compileColumn asks e.compiler for col's compiled body and registers it.
// The evaluation-context relation is whatever the Compiler put in the
// returned FormulaEntry.Rel; compileColumn does not derive it from col.Kind.
func (e *Engine) compileColumn(tableID ids.TableID, col *column.Column) error {
	if e.compiler == nil {
		return &SchemaError{Msg: fmt.Sprintf("no formula compiler registered, cannot compile %s.%s", tableID, col.ColID)}
	}
	entry, err := e.compiler.Compile(e, tableID, col.ColID, col.Kind, col.FormulaText)
	if err != nil {
		return &SchemaError{Msg: err.Error()}
	}
	e.formulas[ids.Node{Table: tableID, Col: col.ColID}] = entry
	return nil
}

// GetVersion returns the current schema version integer, bumped whenever a
// schema-shaped document action (AddTable/RemoveTable/RenameTable/
// AddColumn/RemoveColumn/RenameColumn/ModifyColumn) is applied.
func (e *Engine) GetVersion() int { return e.version }

func schemaActionNames() map[action.Name]struct{} {
	return map[action.Name]struct{}{
		action.AddTableAction: {}, action.RemoveTableAction: {}, action.RenameTableAction: {},
		action.AddColumnAction: {}, action.RemoveColumnAction: {}, action.RenameColumnAction: {}, action.ModifyColumnAction: {},
	}
}

// sortedColIDs is a small shared helper for entry points that need
// deterministic column ordering (fetch_table, fetch_snapshot).
func sortedColIDs(cols []*column.Column) []ids.ColID {
	out := make([]ids.ColID, len(cols))
	for i, c := range cols {
		out[i] = c.ColID
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Package column implements the engine's in-memory table storage: typed
// column arrays indexed by a table's stable row-id list, with row 0 always
// reading as the column's type default and row ids never reused once
// allocated.
package column

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kasuganosora/sheetengine/pkg/ids"
)

// Type is a column's logical type.
type Type int

const (
	Text Type = iota
	Int
	Numeric
	Bool
	Date
	DateTime
	Choice
	ChoiceList
	Ref
	RefList
	Attachments
	Any
)

func (t Type) String() string {
	switch t {
	case Text:
		return "Text"
	case Int:
		return "Int"
	case Numeric:
		return "Numeric"
	case Bool:
		return "Bool"
	case Date:
		return "Date"
	case DateTime:
		return "DateTime"
	case Choice:
		return "Choice"
	case ChoiceList:
		return "ChoiceList"
	case Ref:
		return "Ref"
	case RefList:
		return "RefList"
	case Attachments:
		return "Attachments"
	case Any:
		return "Any"
	default:
		return "Unknown"
	}
}

// Default returns the column type's zero value, returned for reads at row 0
// or any out-of-range row id.
func (t Type) Default() interface{} {
	switch t {
	case Text, Choice:
		return ""
	case Int:
		return int64(0)
	case Numeric:
		return float64(0)
	case Bool:
		return false
	case Date, DateTime:
		return time.Time{}
	case ChoiceList:
		return []string(nil)
	case Ref:
		return ids.NoRow
	case RefList:
		return []ids.RowID(nil)
	case Attachments:
		return []int64(nil)
	default:
		return nil
	}
}

// Convert coerces v to typ. The second result is false when v has no
// representation in typ; the caller keeps an AltText of v's string form
// instead, preserving the original text verbatim.
func Convert(v interface{}, typ Type) (interface{}, bool) {
	if v == nil {
		return typ.Default(), true
	}
	if _, ok := v.(RaisedException); ok {
		return v, true
	}
	if alt, ok := v.(AltText); ok {
		// a previously failed conversion retries from the raw string
		v = string(alt)
	}
	switch typ {
	case Text, Choice:
		switch val := v.(type) {
		case string:
			return val, true
		case int64:
			return strconv.FormatInt(val, 10), true
		case float64:
			return strconv.FormatFloat(val, 'g', -1, 64), true
		case bool:
			return strconv.FormatBool(val), true
		case time.Time:
			return val.Format(time.RFC3339), true
		}
	case Int:
		switch val := v.(type) {
		case int64:
			return val, true
		case float64:
			if val == math.Trunc(val) {
				return int64(val), true
			}
		case bool:
			if val {
				return int64(1), true
			}
			return int64(0), true
		case ids.RowID:
			return int64(val), true
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
				return n, true
			}
		}
	case Numeric:
		switch val := v.(type) {
		case float64:
			return val, true
		case int64:
			return float64(val), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return f, true
			}
		}
	case Bool:
		switch val := v.(type) {
		case bool:
			return val, true
		case int64:
			return val != 0, true
		case float64:
			return val != 0, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				return b, true
			}
		}
	case Date, DateTime:
		switch val := v.(type) {
		case time.Time:
			return val, true
		case string:
			if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(val)); err == nil {
				return ts, true
			}
		}
	case Ref:
		switch val := v.(type) {
		case ids.RowID:
			return val, true
		case int64:
			return ids.RowID(val), true
		}
	case RefList:
		switch val := v.(type) {
		case []ids.RowID:
			return val, true
		case []int64:
			out := make([]ids.RowID, len(val))
			for i, n := range val {
				out[i] = ids.RowID(n)
			}
			return out, true
		}
	case ChoiceList:
		switch val := v.(type) {
		case []string:
			return val, true
		case string:
			return []string{val}, true
		}
	case Attachments:
		if val, ok := v.([]int64); ok {
			return val, true
		}
	case Any:
		return v, true
	}
	return nil, false
}

// Kind distinguishes plain stored data from formula-derived cells.
type Kind int

const (
	// KindData is an ordinary stored-value column.
	KindData Kind = iota
	// KindFormula recomputes reactively through the dependency graph.
	KindFormula
	// KindTrigger is a data column with a recompute formula driven by
	// explicit triggers rather than reactive dependencies (see
	// relation.SingleRowIdentity).
	KindTrigger
)

// AltText wraps a raw string stored in a non-text typed column, e.g. when
// ModifyColumn changes a column's type and a cell cannot be converted. It is
// retained verbatim and compares equal only to the identical string;
// formulas observe the raw string when they read the cell.
type AltText string

// RaisedException boxes an error raised during formula evaluation so it can
// be stored as a cell value; reads of such a cell must propagate it.
type RaisedException struct {
	Kind    string
	Message string
}

func (e RaisedException) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Column is a single (table_id, col_id) of a Table.
type Column struct {
	TableID ids.TableID
	ColID   ids.ColID
	Type    Type
	Kind    Kind

	// FormulaText is the source of a formula/trigger column's body; it is
	// empty for data columns. The compiled body is not stored on the
	// Column: pkg/engine keeps it in its own formula registry.
	FormulaText string

	// DefaultFormulaText is a data column's default-value expression,
	// evaluated by the user-action translator's caller (pkg/engine) for any
	// field AddRecord/BulkAddRecord leaves unset, per spec.md §4.H. Empty
	// for columns with no declared default (they default to Type.Default()
	// as usual).
	DefaultFormulaText string

	values []interface{} // parallel to the owning Table's rowIDs, by position
}

func newColumn(table ids.TableID, col ids.ColID, typ Type, kind Kind) *Column {
	return &Column{TableID: table, ColID: col, Type: typ, Kind: kind}
}

func (c *Column) valueAt(pos int) interface{} {
	if pos < 0 || pos >= len(c.values) {
		return c.Type.Default()
	}
	v := c.values[pos]
	if v == nil {
		return c.Type.Default()
	}
	return v
}

// ErrTableNotFound reports a reference to a table that does not exist.
type ErrTableNotFound struct{ TableID ids.TableID }

func (e *ErrTableNotFound) Error() string { return fmt.Sprintf("table %s not found", e.TableID) }

// ErrTableExists reports an attempt to create a table id that already exists.
type ErrTableExists struct{ TableID ids.TableID }

func (e *ErrTableExists) Error() string { return fmt.Sprintf("table %s already exists", e.TableID) }

// ErrColumnNotFound reports a reference to a column that does not exist.
type ErrColumnNotFound struct {
	TableID ids.TableID
	ColID   ids.ColID
}

func (e *ErrColumnNotFound) Error() string {
	return fmt.Sprintf("column %s.%s not found", e.TableID, e.ColID)
}

// ErrColumnExists reports an attempt to add a column id that already exists.
type ErrColumnExists struct {
	TableID ids.TableID
	ColID   ids.ColID
}

func (e *ErrColumnExists) Error() string {
	return fmt.Sprintf("column %s.%s already exists", e.TableID, e.ColID)
}

// Table is a named collection of columns plus the ordered, stable row-id
// list shared by all of them.
type Table struct {
	ID ids.TableID

	rowIDs  []ids.RowID
	pos     map[ids.RowID]int // row id -> position in rowIDs/each column's values
	columns map[ids.ColID]*Column
	colOrder []ids.ColID

	nextRowID ids.RowID
}

// NewTable returns an empty table with the given id.
func NewTable(id ids.TableID) *Table {
	return &Table{
		ID:      id,
		pos:     make(map[ids.RowID]int),
		columns: make(map[ids.ColID]*Column),
	}
}

// AddColumn creates a new column. Returns ErrColumnExists if colID is taken.
func (t *Table) AddColumn(colID ids.ColID, typ Type, kind Kind) (*Column, error) {
	if _, exists := t.columns[colID]; exists {
		return nil, &ErrColumnExists{TableID: t.ID, ColID: colID}
	}
	col := newColumn(t.ID, colID, typ, kind)
	col.values = make([]interface{}, len(t.rowIDs))
	t.columns[colID] = col
	t.colOrder = append(t.colOrder, colID)
	return col, nil
}

// RemoveColumn drops a column entirely.
func (t *Table) RemoveColumn(colID ids.ColID) error {
	if _, exists := t.columns[colID]; !exists {
		return &ErrColumnNotFound{TableID: t.ID, ColID: colID}
	}
	delete(t.columns, colID)
	for i, c := range t.colOrder {
		if c == colID {
			t.colOrder = append(t.colOrder[:i], t.colOrder[i+1:]...)
			break
		}
	}
	return nil
}

// RenameColumn changes a column's id in place; the Column's identity (and
// any stored values) is otherwise untouched, so lookup indexes and anything
// else holding a *Column reference directly (not by name) stay valid across
// the rename.
func (t *Table) RenameColumn(oldID, newID ids.ColID) error {
	col, exists := t.columns[oldID]
	if !exists {
		return &ErrColumnNotFound{TableID: t.ID, ColID: oldID}
	}
	if _, taken := t.columns[newID]; taken {
		return &ErrColumnExists{TableID: t.ID, ColID: newID}
	}
	delete(t.columns, oldID)
	col.ColID = newID
	t.columns[newID] = col
	for i, c := range t.colOrder {
		if c == oldID {
			t.colOrder[i] = newID
			break
		}
	}
	return nil
}

// Column returns the named column, or an error if it doesn't exist.
func (t *Table) Column(colID ids.ColID) (*Column, error) {
	col, exists := t.columns[colID]
	if !exists {
		return nil, &ErrColumnNotFound{TableID: t.ID, ColID: colID}
	}
	return col, nil
}

// Columns returns the table's columns in declaration order.
func (t *Table) Columns() []*Column {
	out := make([]*Column, 0, len(t.colOrder))
	for _, id := range t.colOrder {
		out = append(out, t.columns[id])
	}
	return out
}

// RowIDs returns the table's current row ids in storage order. That is
// insertion order until a row is removed: RemoveRecord moves the last row
// into the removed row's position, so after a removal the order is neither
// insertion order nor numeric order (use SortedRowIDs for the latter).
func (t *Table) RowIDs() []ids.RowID {
	out := make([]ids.RowID, len(t.rowIDs))
	copy(out, t.rowIDs)
	return out
}

// HasRow reports whether rowID currently exists in the table.
func (t *Table) HasRow(rowID ids.RowID) bool {
	_, ok := t.pos[rowID]
	return ok
}

// AllocateRowID advances the table's row-id counter and returns the new id,
// so successive calls return distinct ids even before any of them is
// inserted; AddRecord performs the actual row insertion. Exposed so the user-action
// translator can allocate ids for a whole BulkAddRecord batch up front
// (needed to bind negative temporary row ids before any rows are inserted).
func (t *Table) AllocateRowID() ids.RowID {
	t.nextRowID++
	return t.nextRowID
}

// AddRecord inserts a new row with the given id (already resolved from any
// temporary negative id by the translator) at the end of the table.
// Existing columns get their type default at the new position.
func (t *Table) AddRecord(rowID ids.RowID) {
	if rowID == ids.NoRow || t.HasRow(rowID) {
		return
	}
	pos := len(t.rowIDs)
	t.rowIDs = append(t.rowIDs, rowID)
	t.pos[rowID] = pos
	if rowID > t.nextRowID {
		t.nextRowID = rowID
	}
	for _, col := range t.columns {
		col.values = append(col.values, nil)
	}
}

// RemoveRecord deletes a row permanently; the row id is never reused.
func (t *Table) RemoveRecord(rowID ids.RowID) {
	pos, ok := t.pos[rowID]
	if !ok {
		return
	}
	last := len(t.rowIDs) - 1
	// Swap-remove, then fix up the moved row's position.
	movedID := t.rowIDs[last]
	t.rowIDs[pos] = movedID
	t.rowIDs = t.rowIDs[:last]
	for _, col := range t.columns {
		col.values[pos] = col.values[last]
		col.values = col.values[:last]
	}
	if movedID != rowID {
		t.pos[movedID] = pos
	}
	delete(t.pos, rowID)
}

// Get reads a cell. Row 0 and out-of-range rows read as the column's type
// default. A RaisedException stored in the cell is returned as-is (the
// caller, typically pkg/formula, decides whether to propagate it as an
// error).
func (t *Table) Get(colID ids.ColID, rowID ids.RowID) (interface{}, error) {
	col, err := t.Column(colID)
	if err != nil {
		return nil, err
	}
	if rowID == ids.NoRow {
		return col.Type.Default(), nil
	}
	pos, ok := t.pos[rowID]
	if !ok {
		return col.Type.Default(), nil
	}
	return col.valueAt(pos), nil
}

// Set writes a cell. Writes at row 0 are silently ignored, since row 0 is
// the permanent "no record" sentinel.
func (t *Table) Set(colID ids.ColID, rowID ids.RowID, value interface{}) error {
	col, err := t.Column(colID)
	if err != nil {
		return err
	}
	if rowID == ids.NoRow {
		return nil
	}
	pos, ok := t.pos[rowID]
	if !ok {
		return nil
	}
	col.values[pos] = value
	return nil
}

// ConvertColumn re-coerces every stored cell of colID to the column's
// current (newly assigned) type. A cell with no representation in the new
// type is kept as an AltText of its string form rather than dropped, so the
// original text survives a round trip back to the old type.
func (t *Table) ConvertColumn(colID ids.ColID) error {
	col, err := t.Column(colID)
	if err != nil {
		return err
	}
	for i, v := range col.values {
		if v == nil {
			continue
		}
		converted, ok := Convert(v, col.Type)
		if ok {
			col.values[i] = converted
			continue
		}
		col.values[i] = AltText(fmt.Sprintf("%v", v))
	}
	return nil
}

// SortedRowIDs returns the table's row ids sorted numerically, useful for
// deterministic iteration (e.g. fetch_table dumps).
func (t *Table) SortedRowIDs() []ids.RowID {
	out := t.RowIDs()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

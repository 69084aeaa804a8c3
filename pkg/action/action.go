// Package action implements the document-action model: the ground-truth
// mutations the engine applies (AddRecord, UpdateRecord, AddColumn, ...),
// their canonical inverses, and the four-stream Bundle a user-action
// submission returns to the host.
package action

import (
	"fmt"

	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/ids"
)

// Name identifies a document action's kind, matching the wire names used in
// spec.md §6's action array form (e.g. ["UpdateRecord", "Students", 7, ...]).
type Name string

const (
	AddRecord       Name = "AddRecord"
	BulkAddRecord   Name = "BulkAddRecord"
	RemoveRecord    Name = "RemoveRecord"
	BulkRemoveRecord Name = "BulkRemoveRecord"
	UpdateRecord    Name = "UpdateRecord"
	BulkUpdateRecord Name = "BulkUpdateRecord"
	ReplaceTableData Name = "ReplaceTableData"

	AddColumnAction    Name = "AddColumn"
	RemoveColumnAction Name = "RemoveColumn"
	RenameColumnAction Name = "RenameColumn"
	ModifyColumnAction Name = "ModifyColumn"

	AddTableAction    Name = "AddTable"
	RemoveTableAction Name = "RemoveTable"
	RenameTableAction Name = "RenameTable"

	// User-action-only names. These never appear in a bundle's stored
	// stream: the engine consumes them during ApplyUserActions (Calculate
	// runs a recompute-only pass; RespondToRequests delivers the results of
	// earlier REQUEST() calls, keyed by argument-tuple hash in Fields).
	Calculate         Name = "Calculate"
	RespondToRequests Name = "RespondToRequests"
)

// DocAction is one ground-truth mutation. Fields not relevant to Name are
// left zero; this mirrors the wire form's "array of positional fields"
// instead of per-kind Go structs, since the host dispatch table and the
// undo/inverse machinery both need to treat actions uniformly regardless of
// kind.
type DocAction struct {
	Name Name

	Table    ids.TableID
	NewTable ids.TableID // RenameTable's destination

	Col    ids.ColID
	NewCol ids.ColID // RenameColumn's destination

	RowID  ids.RowID
	RowIDs []ids.RowID

	// ColValues, for Bulk*Record, maps column id to one value per RowIDs
	// position. For single-row actions, Fields holds colID -> value.
	Fields    map[ids.ColID]interface{}
	ColValues map[ids.ColID][]interface{}

	// AddColumn / ModifyColumn describe a column's type/kind/formula. For
	// ModifyColumn, these are the *new* values; PriorType/PriorKind/
	// PriorFormula (set by the applier when building the inverse) hold what
	// was there before.
	Type        column.Type
	Kind        column.Kind
	FormulaText string

	PriorType        column.Type
	PriorKind        column.Kind
	PriorFormulaText string

	// ReplaceTableData payload: the full new (or, in the inverse, old) table
	// contents, one slice per column, aligned to RowIDs.
	TableRowIDs []ids.RowID
	TableData   map[ids.ColID][]interface{}
}

// String renders the action the way the wire form's array would print, for
// logging and test failure messages.
func (a DocAction) String() string {
	switch a.Name {
	case AddRecord:
		return fmt.Sprintf("[%s %s %d %v]", a.Name, a.Table, a.RowID, a.Fields)
	case RemoveRecord:
		return fmt.Sprintf("[%s %s %d]", a.Name, a.Table, a.RowID)
	case BulkAddRecord, BulkRemoveRecord, BulkUpdateRecord:
		return fmt.Sprintf("[%s %s %v]", a.Name, a.Table, a.RowIDs)
	case UpdateRecord:
		return fmt.Sprintf("[%s %s %d %v]", a.Name, a.Table, a.RowID, a.Fields)
	case RenameColumnAction:
		return fmt.Sprintf("[%s %s %s %s]", a.Name, a.Table, a.Col, a.NewCol)
	case RenameTableAction:
		return fmt.Sprintf("[%s %s %s]", a.Name, a.Table, a.NewTable)
	default:
		return fmt.Sprintf("[%s %s]", a.Name, a.Table)
	}
}

// Inverse returns the canonical inverse of a, per spec.md §4.G: AddRecord <->
// RemoveRecord, ModifyColumn(changes) <-> ModifyColumn(prior values), etc.
// Inverse does not touch engine state; the caller must have already captured
// PriorType/PriorKind/PriorFormulaText (for ModifyColumn) and TableData's old
// contents (for ReplaceTableData) before applying a, since those are the only
// way to know what to restore.
func (a DocAction) Inverse() DocAction {
	switch a.Name {
	case AddRecord:
		return DocAction{Name: RemoveRecord, Table: a.Table, RowID: a.RowID}
	case RemoveRecord:
		return DocAction{Name: AddRecord, Table: a.Table, RowID: a.RowID, Fields: a.Fields}
	case BulkAddRecord:
		return DocAction{Name: BulkRemoveRecord, Table: a.Table, RowIDs: a.RowIDs}
	case BulkRemoveRecord:
		return DocAction{Name: BulkAddRecord, Table: a.Table, RowIDs: a.RowIDs, ColValues: a.ColValues}
	case UpdateRecord:
		// Caller must swap a.Fields for the prior values before calling
		// Inverse; Inverse itself just reflects the shape back.
		return DocAction{Name: UpdateRecord, Table: a.Table, RowID: a.RowID, Fields: a.Fields}
	case BulkUpdateRecord:
		return DocAction{Name: BulkUpdateRecord, Table: a.Table, RowIDs: a.RowIDs, ColValues: a.ColValues}
	case ReplaceTableData:
		return DocAction{Name: ReplaceTableData, Table: a.Table, TableRowIDs: a.TableRowIDs, TableData: a.TableData}
	case AddColumnAction:
		return DocAction{Name: RemoveColumnAction, Table: a.Table, Col: a.Col}
	case RemoveColumnAction:
		return DocAction{Name: AddColumnAction, Table: a.Table, Col: a.Col, Type: a.PriorType, Kind: a.PriorKind, FormulaText: a.PriorFormulaText}
	case RenameColumnAction:
		return DocAction{Name: RenameColumnAction, Table: a.Table, Col: a.NewCol, NewCol: a.Col}
	case ModifyColumnAction:
		return DocAction{Name: ModifyColumnAction, Table: a.Table, Col: a.Col, Type: a.PriorType, Kind: a.PriorKind, FormulaText: a.PriorFormulaText, PriorType: a.Type, PriorKind: a.Kind, PriorFormulaText: a.FormulaText}
	case AddTableAction:
		return DocAction{Name: RemoveTableAction, Table: a.Table}
	case RemoveTableAction:
		return DocAction{Name: AddTableAction, Table: a.Table}
	case RenameTableAction:
		return DocAction{Name: RenameTableAction, Table: a.NewTable, NewTable: a.Table}
	default:
		return a
	}
}

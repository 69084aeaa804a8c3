package action

import (
	"fmt"

	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/ids"
)

// Registry is the minimal table-directory surface Apply needs: enough to
// create/rename/remove whole tables and fetch one to mutate its rows and
// columns. pkg/docmodel implements this over its live table map; keeping the
// interface here (rather than importing pkg/docmodel) avoids a dependency
// cycle, since docmodel itself calls action.Apply.
type Registry interface {
	Table(id ids.TableID) (*column.Table, error)
	AddTable(id ids.TableID) (*column.Table, error)
	RemoveTable(id ids.TableID) error
	RenameTable(oldID, newID ids.TableID) error
}

// ErrUnknownAction reports a DocAction.Name the applier doesn't recognize.
type ErrUnknownAction struct{ Name Name }

func (e *ErrUnknownAction) Error() string { return fmt.Sprintf("unknown document action %q", e.Name) }

// Apply performs a single document action's mutation against reg, mirroring
// the canonical semantics in spec.md §4.G/§3. It does not itself populate
// Bundle/Undo bookkeeping; callers append a (and its Inverse) to a Bundle
// themselves via Bundle.AppendStored, since Apply alone can't know whether
// the action was direct or a calc side effect.
func Apply(reg Registry, a DocAction) error {
	switch a.Name {
	case AddRecord:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		t.AddRecord(a.RowID)
		for col, val := range a.Fields {
			if err := t.Set(col, a.RowID, val); err != nil {
				return err
			}
		}
		return nil

	case BulkAddRecord:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		for _, row := range a.RowIDs {
			t.AddRecord(row)
		}
		for col, vals := range a.ColValues {
			for i, row := range a.RowIDs {
				if i < len(vals) {
					if err := t.Set(col, row, vals[i]); err != nil {
						return err
					}
				}
			}
		}
		return nil

	case RemoveRecord:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		t.RemoveRecord(a.RowID)
		return nil

	case BulkRemoveRecord:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		for _, row := range a.RowIDs {
			t.RemoveRecord(row)
		}
		return nil

	case UpdateRecord:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		for col, val := range a.Fields {
			if err := t.Set(col, a.RowID, val); err != nil {
				return err
			}
		}
		return nil

	case BulkUpdateRecord:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		for col, vals := range a.ColValues {
			for i, row := range a.RowIDs {
				if i < len(vals) {
					if err := t.Set(col, row, vals[i]); err != nil {
						return err
					}
				}
			}
		}
		return nil

	case ReplaceTableData:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		for _, row := range t.RowIDs() {
			t.RemoveRecord(row)
		}
		for _, row := range a.TableRowIDs {
			t.AddRecord(row)
		}
		for col, vals := range a.TableData {
			for i, row := range a.TableRowIDs {
				if i < len(vals) {
					if err := t.Set(col, row, vals[i]); err != nil {
						return err
					}
				}
			}
		}
		return nil

	case AddColumnAction:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		_, err = t.AddColumn(a.Col, a.Type, a.Kind)
		if err != nil {
			return err
		}
		if a.FormulaText != "" {
			col, _ := t.Column(a.Col)
			col.FormulaText = a.FormulaText
		}
		return nil

	case RemoveColumnAction:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		return t.RemoveColumn(a.Col)

	case RenameColumnAction:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		return t.RenameColumn(a.Col, a.NewCol)

	case ModifyColumnAction:
		t, err := reg.Table(a.Table)
		if err != nil {
			return err
		}
		col, err := t.Column(a.Col)
		if err != nil {
			return err
		}
		typeChanged := col.Type != a.Type
		col.Type = a.Type
		col.Kind = a.Kind
		col.FormulaText = a.FormulaText
		if typeChanged {
			return t.ConvertColumn(a.Col)
		}
		return nil

	case AddTableAction:
		_, err := reg.AddTable(a.Table)
		return err

	case RemoveTableAction:
		return reg.RemoveTable(a.Table)

	case RenameTableAction:
		return reg.RenameTable(a.Table, a.NewTable)

	default:
		return &ErrUnknownAction{Name: a.Name}
	}
}

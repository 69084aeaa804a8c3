package engine

import (
	"fmt"
	"time"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/wire"
)

// Wire value conversions: pkg/wire only speaks a handful of primitive
// shapes (nil/bool/int64/float64/[]byte/string/[]interface{}/*wire.Dict), so
// every richer engine type (ids.RowID, []ids.RowID, time.Time, column.Type,
// *action.DocAction, TableData) has a pair of to/from-wire helpers here
// rather than implementing its own marshalling, keeping pkg/wire itself
// free of any engine-domain knowledge.

func cellToWire(v interface{}) interface{} {
	switch val := v.(type) {
	case ids.RowID:
		return int64(val)
	case []ids.RowID:
		out := make([]interface{}, len(val))
		for i, r := range val {
			out[i] = int64(r)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case column.AltText:
		return string(val)
	case column.RaisedException:
		d := wire.NewDict()
		d.Set("kind", val.Kind)
		d.Set("message", val.Message)
		return d
	case PendingValue:
		d := wire.NewDict()
		d.Set("pendingRequest", val.Key)
		return d
	default:
		return v
	}
}

func cellFromWire(v interface{}, typ column.Type) interface{} {
	switch typ {
	case column.Ref:
		if n, ok := v.(int64); ok {
			return ids.RowID(n)
		}
	case column.RefList:
		if list, ok := v.([]interface{}); ok {
			out := make([]ids.RowID, len(list))
			for i, e := range list {
				if n, ok := e.(int64); ok {
					out[i] = ids.RowID(n)
				}
			}
			return out
		}
	case column.ChoiceList:
		if list, ok := v.([]interface{}); ok {
			out := make([]string, len(list))
			for i, e := range list {
				if s, ok := e.(string); ok {
					out[i] = s
				}
			}
			return out
		}
	case column.Date, column.DateTime:
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
	}
	return v
}

// tableDataToDict encodes a TableData as {"rowIds": [...], "columns": {colId:
// [...values]}}.
func tableDataToDict(table *column.Table, td TableData) *wire.Dict {
	rowIDs := make([]interface{}, len(td.RowIDs))
	for i, r := range td.RowIDs {
		rowIDs[i] = int64(r)
	}
	cols := wire.NewDict()
	for col, vals := range td.Columns {
		wireVals := make([]interface{}, len(vals))
		for i, v := range vals {
			wireVals[i] = cellToWire(v)
		}
		cols.Set(string(col), wireVals)
	}
	out := wire.NewDict()
	out.Set("rowIds", rowIDs)
	out.Set("columns", cols)
	return out
}

func dictToTableData(d *wire.Dict, colTypes map[ids.ColID]column.Type) (TableData, error) {
	rowsRaw, _ := d.Get("rowIds")
	rowList, ok := rowsRaw.([]interface{})
	if !ok {
		return TableData{}, fmt.Errorf("engine: table data rowIds must be a list")
	}
	rowIDs := make([]ids.RowID, len(rowList))
	for i, r := range rowList {
		n, ok := r.(int64)
		if !ok {
			return TableData{}, fmt.Errorf("engine: row id must be an int")
		}
		rowIDs[i] = ids.RowID(n)
	}
	colsRaw, _ := d.Get("columns")
	colsDict, ok := colsRaw.(*wire.Dict)
	if !ok {
		return TableData{}, fmt.Errorf("engine: table data columns must be a dict")
	}
	columns := make(map[ids.ColID][]interface{})
	for _, key := range colsDict.Keys() {
		valsRaw, _ := colsDict.Get(key)
		vals, ok := valsRaw.([]interface{})
		if !ok {
			return TableData{}, fmt.Errorf("engine: column %s values must be a list", key)
		}
		typ := colTypes[ids.ColID(key)]
		out := make([]interface{}, len(vals))
		for i, v := range vals {
			out[i] = cellFromWire(v, typ)
		}
		columns[ids.ColID(key)] = out
	}
	return TableData{RowIDs: rowIDs, Columns: columns}, nil
}

// docActionToWire encodes a DocAction as [name, table, ...kind-specific
// fields], mirroring spec.md §6's worked examples like ["UpdateRecord",
// "Students", 7, {...}].
func docActionToWire(a action.DocAction) []interface{} {
	switch a.Name {
	case action.AddRecord:
		return []interface{}{string(a.Name), string(a.Table), int64(a.RowID), fieldsToWire(a.Fields)}
	case action.RemoveRecord:
		return []interface{}{string(a.Name), string(a.Table), int64(a.RowID)}
	case action.BulkAddRecord, action.BulkRemoveRecord, action.BulkUpdateRecord:
		return []interface{}{string(a.Name), string(a.Table), rowIDsToWire(a.RowIDs), colValuesToWire(a.ColValues)}
	case action.UpdateRecord:
		return []interface{}{string(a.Name), string(a.Table), int64(a.RowID), fieldsToWire(a.Fields)}
	case action.RenameColumnAction:
		return []interface{}{string(a.Name), string(a.Table), string(a.Col), string(a.NewCol)}
	case action.RenameTableAction:
		return []interface{}{string(a.Name), string(a.Table), string(a.NewTable)}
	case action.AddColumnAction, action.ModifyColumnAction:
		return []interface{}{string(a.Name), string(a.Table), string(a.Col), a.Type.String(), int64(a.Kind), a.FormulaText}
	case action.RemoveColumnAction:
		return []interface{}{string(a.Name), string(a.Table), string(a.Col)}
	case action.AddTableAction, action.RemoveTableAction:
		return []interface{}{string(a.Name), string(a.Table)}
	default:
		return []interface{}{string(a.Name), string(a.Table)}
	}
}

func fieldsToWire(fields map[ids.ColID]interface{}) *wire.Dict {
	d := wire.NewDict()
	for col, v := range fields {
		d.Set(string(col), cellToWire(v))
	}
	return d
}

func rowIDsToWire(rows []ids.RowID) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = int64(r)
	}
	return out
}

func parseColumnType(s string) column.Type {
	switch s {
	case "Text":
		return column.Text
	case "Int":
		return column.Int
	case "Numeric":
		return column.Numeric
	case "Bool":
		return column.Bool
	case "Date":
		return column.Date
	case "DateTime":
		return column.DateTime
	case "Choice":
		return column.Choice
	case "ChoiceList":
		return column.ChoiceList
	case "Ref":
		return column.Ref
	case "RefList":
		return column.RefList
	case "Attachments":
		return column.Attachments
	default:
		return column.Any
	}
}

// wireToDocAction decodes one action.DocAction from the positional-list form
// docActionToWire produces, the inverse of that function.
func wireToDocAction(list []interface{}) (action.DocAction, error) {
	if len(list) == 0 {
		return action.DocAction{}, fmt.Errorf("engine: empty action")
	}
	nameStr, ok := list[0].(string)
	if !ok {
		return action.DocAction{}, fmt.Errorf("engine: action name must be text")
	}
	name := action.Name(nameStr)
	get := func(i int) (interface{}, bool) {
		if i < len(list) {
			return list[i], true
		}
		return nil, false
	}
	table := func(i int) ids.TableID {
		if v, ok := get(i); ok {
			if s, ok := v.(string); ok {
				return ids.TableID(s)
			}
		}
		return ""
	}
	col := func(i int) ids.ColID {
		if v, ok := get(i); ok {
			if s, ok := v.(string); ok {
				return ids.ColID(s)
			}
		}
		return ""
	}
	row := func(i int) ids.RowID {
		if v, ok := get(i); ok {
			if n, ok := v.(int64); ok {
				return ids.RowID(n)
			}
		}
		return ids.NoRow
	}
	rows := func(i int) []ids.RowID {
		v, ok := get(i)
		list, ok2 := v.([]interface{})
		if !ok || !ok2 {
			return nil
		}
		out := make([]ids.RowID, len(list))
		for j, e := range list {
			if n, ok := e.(int64); ok {
				out[j] = ids.RowID(n)
			}
		}
		return out
	}
	fields := func(i int) map[ids.ColID]interface{} {
		v, ok := get(i)
		d, ok2 := v.(*wire.Dict)
		if !ok || !ok2 {
			return nil
		}
		out := make(map[ids.ColID]interface{}, d.Len())
		for _, k := range d.Keys() {
			val, _ := d.Get(k)
			out[ids.ColID(k)] = cellFromWire(val, column.Any)
		}
		return out
	}
	colValues := func(i int) map[ids.ColID][]interface{} {
		v, ok := get(i)
		d, ok2 := v.(*wire.Dict)
		if !ok || !ok2 {
			return nil
		}
		out := make(map[ids.ColID][]interface{}, d.Len())
		for _, k := range d.Keys() {
			valRaw, _ := d.Get(k)
			vals, _ := valRaw.([]interface{})
			cells := make([]interface{}, len(vals))
			for j, v := range vals {
				cells[j] = cellFromWire(v, column.Any)
			}
			out[ids.ColID(k)] = cells
		}
		return out
	}
	str := func(i int) string {
		if v, ok := get(i); ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	i64 := func(i int) int64 {
		if v, ok := get(i); ok {
			if n, ok := v.(int64); ok {
				return n
			}
		}
		return 0
	}

	switch name {
	case action.AddRecord:
		return action.DocAction{Name: name, Table: table(1), RowID: row(2), Fields: fields(3)}, nil
	case action.RemoveRecord:
		return action.DocAction{Name: name, Table: table(1), RowID: row(2)}, nil
	case action.BulkAddRecord, action.BulkRemoveRecord, action.BulkUpdateRecord:
		return action.DocAction{Name: name, Table: table(1), RowIDs: rows(2), ColValues: colValues(3)}, nil
	case action.UpdateRecord:
		return action.DocAction{Name: name, Table: table(1), RowID: row(2), Fields: fields(3)}, nil
	case action.RenameColumnAction:
		return action.DocAction{Name: name, Table: table(1), Col: col(2), NewCol: col(3)}, nil
	case action.RenameTableAction:
		return action.DocAction{Name: name, Table: table(1), NewTable: table(2)}, nil
	case action.AddColumnAction, action.ModifyColumnAction:
		return action.DocAction{
			Name: name, Table: table(1), Col: col(2),
			Type: parseColumnType(str(3)), Kind: column.Kind(i64(4)), FormulaText: str(5),
		}, nil
	case action.RemoveColumnAction:
		return action.DocAction{Name: name, Table: table(1), Col: col(2)}, nil
	case action.AddTableAction, action.RemoveTableAction:
		return action.DocAction{Name: name, Table: table(1)}, nil
	case action.Calculate:
		return action.DocAction{Name: name}, nil
	case action.RespondToRequests:
		return action.DocAction{Name: name, Fields: fields(1)}, nil
	default:
		return action.DocAction{}, fmt.Errorf("engine: unknown action %q", nameStr)
	}
}

func colValuesToWire(cv map[ids.ColID][]interface{}) *wire.Dict {
	d := wire.NewDict()
	for col, vals := range cv {
		wireVals := make([]interface{}, len(vals))
		for i, v := range vals {
			wireVals[i] = cellToWire(v)
		}
		d.Set(string(col), wireVals)
	}
	return d
}

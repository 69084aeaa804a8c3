package engine

import (
	"fmt"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/wire"
)

// Dispatch routes one decoded wire CALL body (name plus positional args, see
// wire.ParseCall) to the matching Engine entry point and returns a
// wire-encodable result, for cmd/engine's request loop. Every entry point
// listed in SPEC_FULL.md §6 is reachable from here;
// anything else is an InvalidRequestError, per spec.md §7's "unknown
// entry-point name" kind.
func (e *Engine) Dispatch(name string, args []interface{}) (interface{}, error) {
	switch name {
	case "load_empty":
		return nil, e.LoadEmpty()

	case "load_meta_tables":
		tablesDict, err := argDict(args, 0)
		if err != nil {
			return nil, err
		}
		columnsDict, err := argDict(args, 1)
		if err != nil {
			return nil, err
		}
		tables, err := dictToTableData(tablesDict, nil)
		if err != nil {
			return nil, &InvalidRequestError{Msg: err.Error()}
		}
		columns, err := dictToTableData(columnsDict, nil)
		if err != nil {
			return nil, &InvalidRequestError{Msg: err.Error()}
		}
		return nil, e.LoadMetaTables(tables, columns)

	case "load_table":
		tableID, err := argTableID(args, 0)
		if err != nil {
			return nil, err
		}
		colsList, err := argList(args, 1)
		if err != nil {
			return nil, err
		}
		dataDict, err := argDict(args, 2)
		if err != nil {
			return nil, err
		}
		cols, err := decodeColumnDefs(colsList)
		if err != nil {
			return nil, &InvalidRequestError{Msg: err.Error()}
		}
		typesByCol := make(map[ids.ColID]column.Type, len(cols))
		for _, c := range cols {
			typesByCol[c.ID] = c.Type
		}
		data, err := dictToTableData(dataDict, typesByCol)
		if err != nil {
			return nil, &InvalidRequestError{Msg: err.Error()}
		}
		return nil, e.LoadTable(tableID, cols, data)

	case "load_done":
		return nil, e.LoadDone()

	case "apply_user_actions":
		list, err := argList(args, 0)
		if err != nil {
			return nil, err
		}
		uas := make([]action.DocAction, 0, len(list))
		for _, raw := range list {
			item, ok := raw.([]interface{})
			if !ok {
				return nil, &InvalidRequestError{Msg: "apply_user_actions: each action must be a list"}
			}
			ua, err := wireToDocAction(item)
			if err != nil {
				return nil, &InvalidRequestError{Msg: err.Error()}
			}
			uas = append(uas, ua)
		}
		bundle, err := e.ApplyUserActions(uas)
		if err != nil {
			return nil, err
		}
		return bundleToWire(bundle), nil

	case "fetch_table":
		tableID, err := argTableID(args, 0)
		if err != nil {
			return nil, err
		}
		formulas, _ := argBool(args, 1)
		var query map[ids.ColID]interface{}
		if qd, err := argDict(args, 2); err == nil {
			query = make(map[ids.ColID]interface{}, qd.Len())
			for _, k := range qd.Keys() {
				v, _ := qd.Get(k)
				query[ids.ColID(k)] = cellFromWire(v, column.Any)
			}
		}
		data, err := e.FetchTable(tableID, formulas, query)
		if err != nil {
			return nil, err
		}
		return tableDataToDict(nil, data), nil

	case "fetch_meta_tables":
		out, err := e.FetchMetaTables()
		if err != nil {
			return nil, err
		}
		d := wire.NewDict()
		for id, data := range out {
			d.Set(string(id), tableDataToDict(nil, data))
		}
		return d, nil

	case "fetch_snapshot":
		out, err := e.FetchSnapshot()
		if err != nil {
			return nil, err
		}
		d := wire.NewDict()
		for id, data := range out {
			d.Set(string(id), tableDataToDict(nil, data))
		}
		return d, nil

	case "autocomplete":
		prefix, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		tableID, err := argTableID(args, 1)
		if err != nil {
			return nil, err
		}
		out, err := e.Autocomplete(prefix, tableID)
		if err != nil {
			return nil, err
		}
		list := make([]interface{}, len(out))
		for i, s := range out {
			list[i] = s
		}
		return list, nil

	case "find_col_from_values":
		valuesList, err := argList(args, 0)
		if err != nil {
			return nil, err
		}
		n, err := argInt64(args, 1)
		if err != nil {
			return nil, err
		}
		tableID, _ := argTableID(args, 2)
		values := make([]interface{}, len(valuesList))
		for i, v := range valuesList {
			values[i] = cellFromWire(v, column.Any)
		}
		matches, err := e.FindColFromValues(values, int(n), tableID)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(matches))
		for i, node := range matches {
			out[i] = []interface{}{string(node.Table), string(node.Col)}
		}
		return out, nil

	case "get_formula_error":
		tableID, err := argTableID(args, 0)
		if err != nil {
			return nil, err
		}
		colID, err := argColID(args, 1)
		if err != nil {
			return nil, err
		}
		rowID, err := argInt64(args, 2)
		if err != nil {
			return nil, err
		}
		ferr, ok := e.GetFormulaError(tableID, colID, ids.RowID(rowID))
		if !ok {
			return nil, nil
		}
		return ferr.Error(), nil

	case "create_migrations":
		allTables, _ := argBool(args, 0)
		actions, err := e.CreateMigrations(allTables)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(actions))
		for i, a := range actions {
			out[i] = docActionToWire(a)
		}
		return out, nil

	case "get_version":
		return int64(e.GetVersion()), nil

	default:
		return nil, &InvalidRequestError{Msg: fmt.Sprintf("unknown entry point %q", name)}
	}
}

func bundleToWire(b *action.Bundle) *wire.Dict {
	d := wire.NewDict()
	encode := func(actions []action.DocAction) []interface{} {
		out := make([]interface{}, len(actions))
		for i, a := range actions {
			out[i] = docActionToWire(a)
		}
		return out
	}
	d.Set("stored", encode(b.Stored))
	direct := make([]interface{}, len(b.Direct))
	for i, v := range b.Direct {
		direct[i] = v
	}
	d.Set("direct", direct)
	d.Set("calc", encode(b.Calc))
	d.Set("undo", encode(b.Undo))
	retValues := make([]interface{}, len(b.RetValues))
	for i, v := range b.RetValues {
		retValues[i] = cellToWire(v)
	}
	d.Set("retValues", retValues)
	return d
}

func argList(args []interface{}, i int) ([]interface{}, error) {
	if i >= len(args) {
		return nil, &InvalidRequestError{Msg: fmt.Sprintf("missing argument %d", i)}
	}
	list, ok := args[i].([]interface{})
	if !ok {
		return nil, &InvalidRequestError{Msg: fmt.Sprintf("argument %d must be a list", i)}
	}
	return list, nil
}

func argDict(args []interface{}, i int) (*wire.Dict, error) {
	if i >= len(args) {
		return nil, &InvalidRequestError{Msg: fmt.Sprintf("missing argument %d", i)}
	}
	d, ok := args[i].(*wire.Dict)
	if !ok {
		return nil, &InvalidRequestError{Msg: fmt.Sprintf("argument %d must be a dict", i)}
	}
	return d, nil
}

func argString(args []interface{}, i int) (string, error) {
	if i >= len(args) {
		return "", &InvalidRequestError{Msg: fmt.Sprintf("missing argument %d", i)}
	}
	s, ok := args[i].(string)
	if !ok {
		return "", &InvalidRequestError{Msg: fmt.Sprintf("argument %d must be text", i)}
	}
	return s, nil
}

func argTableID(args []interface{}, i int) (ids.TableID, error) {
	s, err := argString(args, i)
	if err != nil {
		return "", err
	}
	return ids.TableID(s), nil
}

func argColID(args []interface{}, i int) (ids.ColID, error) {
	s, err := argString(args, i)
	if err != nil {
		return "", err
	}
	return ids.ColID(s), nil
}

func argBool(args []interface{}, i int) (bool, error) {
	if i >= len(args) {
		return false, nil
	}
	b, ok := args[i].(bool)
	if !ok {
		return false, &InvalidRequestError{Msg: fmt.Sprintf("argument %d must be a boolean", i)}
	}
	return b, nil
}

func argInt64(args []interface{}, i int) (int64, error) {
	if i >= len(args) {
		return 0, &InvalidRequestError{Msg: fmt.Sprintf("missing argument %d", i)}
	}
	n, ok := args[i].(int64)
	if !ok {
		return 0, &InvalidRequestError{Msg: fmt.Sprintf("argument %d must be an integer", i)}
	}
	return n, nil
}

// decodeColumnDefs decodes load_table's column-definition list: each entry a
// dict of {id, type, kind, formulaText, defaultFormulaText}.
func decodeColumnDefs(list []interface{}) ([]ColumnDef, error) {
	out := make([]ColumnDef, 0, len(list))
	for _, raw := range list {
		d, ok := raw.(*wire.Dict)
		if !ok {
			return nil, fmt.Errorf("engine: column definition must be a dict")
		}
		idRaw, _ := d.Get("id")
		idStr, _ := idRaw.(string)
		typeRaw, _ := d.Get("type")
		typeStr, _ := typeRaw.(string)
		kindRaw, _ := d.Get("kind")
		kindN, _ := kindRaw.(int64)
		formulaRaw, _ := d.Get("formulaText")
		formulaStr, _ := formulaRaw.(string)
		defaultRaw, _ := d.Get("defaultFormulaText")
		defaultStr, _ := defaultRaw.(string)
		out = append(out, ColumnDef{
			ID:                 ids.ColID(idStr),
			Type:               parseColumnType(typeStr),
			Kind:               column.Kind(kindN),
			FormulaText:        formulaStr,
			DefaultFormulaText: defaultStr,
		})
	}
	return out, nil
}

package mcpapi

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kasuganosora/sheetengine/pkg/engine"
	"github.com/kasuganosora/sheetengine/pkg/ids"
)

// ToolDeps holds the shared dependency (the live engine) for MCP tool
// handlers, mirroring the teacher's ToolDeps shape.
type ToolDeps struct {
	Engine *engine.Engine
}

// HandleFetchTable dumps a table as tab-separated text.
func (d *ToolDeps) HandleFetchTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := request.GetString("table", "")
	if table == "" {
		return mcp.NewToolResultError("table parameter is required"), nil
	}
	formulas := request.GetBool("formulas", false)

	data, err := d.Engine.FetchTable(ids.TableID(table), formulas, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch_table failed: %v", err)), nil
	}

	cols := make([]string, 0, len(data.Columns))
	for col := range data.Columns {
		cols = append(cols, string(col))
	}
	sort.Strings(cols)

	var sb strings.Builder
	sb.WriteString("rowId\t")
	sb.WriteString(strings.Join(cols, "\t"))
	sb.WriteString("\n")
	for i, row := range data.RowIDs {
		sb.WriteString(fmt.Sprintf("%d", row))
		for _, col := range cols {
			sb.WriteString("\t")
			vals := data.Columns[ids.ColID(col)]
			if i < len(vals) {
				sb.WriteString(fmt.Sprintf("%v", vals[i]))
			}
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleAutocomplete returns identifier completions as a newline-joined list.
func (d *ToolDeps) HandleAutocomplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prefix := request.GetString("prefix", "")
	table := request.GetString("table", "")
	if table == "" {
		return mcp.NewToolResultError("table parameter is required"), nil
	}

	out, err := d.Engine.Autocomplete(prefix, ids.TableID(table))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("autocomplete failed: %v", err)), nil
	}
	return mcp.NewToolResultText(strings.Join(out, "\n")), nil
}

// HandleGetFormulaError reports the boxed exception stored in a cell, if any.
func (d *ToolDeps) HandleGetFormulaError(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := request.GetString("table", "")
	col := request.GetString("col", "")
	row := request.GetInt("row", 0)
	if table == "" || col == "" {
		return mcp.NewToolResultError("table and col parameters are required"), nil
	}

	ferr, ok := d.Engine.GetFormulaError(ids.TableID(table), ids.ColID(col), ids.RowID(row))
	if !ok {
		return mcp.NewToolResultText("no error stored in this cell"), nil
	}
	return mcp.NewToolResultText(ferr.Error()), nil
}

// Package mcpapi exposes a read-only subset of the engine's entry points as
// MCP tools, for interactive debugging of a running engine instance. It is
// additive tooling, not a second control channel: pkg/wire's transport
// remains the host's only way to mutate the document, and nothing in this
// package can reach ApplyUserActions or any other mutating entry point.
package mcpapi

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kasuganosora/sheetengine/pkg/config"
	"github.com/kasuganosora/sheetengine/pkg/engine"
)

// Server is the MCP protocol front-end for one running Engine.
type Server struct {
	eng *engine.Engine
	cfg *config.MCPConfig
}

// NewServer returns an MCP server front-ending eng per cfg.
func NewServer(eng *engine.Engine, cfg *config.MCPConfig) *Server {
	return &Server{eng: eng, cfg: cfg}
}

// Start starts the MCP server (blocking).
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	deps := &ToolDeps{Engine: s.eng}

	mcpSrv := mcpserver.NewMCPServer(
		"sheetengine",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	fetchTableTool := mcp.NewTool("fetch_table",
		mcp.WithDescription("Dump a table's current contents, optionally including formula columns"),
		mcp.WithString("table", mcp.Description("The table id"), mcp.Required()),
		mcp.WithBoolean("formulas", mcp.Description("Include formula/trigger columns (default false)")),
	)

	autocompleteTool := mcp.NewTool("autocomplete",
		mcp.WithDescription("Suggest identifier completions for a formula prefix attached to a table"),
		mcp.WithString("prefix", mcp.Description("The partial identifier typed so far"), mcp.Required()),
		mcp.WithString("table", mcp.Description("The table the formula is attached to"), mcp.Required()),
	)

	getFormulaErrorTool := mcp.NewTool("get_formula_error",
		mcp.WithDescription("Return the boxed exception stored in a formula cell, if any"),
		mcp.WithString("table", mcp.Description("The table id"), mcp.Required()),
		mcp.WithString("col", mcp.Description("The column id"), mcp.Required()),
		mcp.WithNumber("row", mcp.Description("The row id"), mcp.Required()),
	)

	mcpSrv.AddTool(fetchTableTool, deps.HandleFetchTable)
	mcpSrv.AddTool(autocompleteTool, deps.HandleAutocomplete)
	mcpSrv.AddTool(getFormulaErrorTool, deps.HandleGetFormulaError)

	httpServer := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	)

	log.Printf("[mcpapi] starting MCP server: %s", addr)
	return httpServer.Start(addr)
}

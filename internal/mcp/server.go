// Package mcp exposes the transfer operations as MCP tools over stdio.
package mcp

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/hpungsan/transferbot/internal/telemetry"
	"github.com/hpungsan/transferbot/pkg/logger"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"transfer_extract": {
		def:     extractToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExtract },
	},
	"transfer_add": {
		def:     addToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAdd },
	},
	"transfer_finish": {
		def:     finishToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFinish },
	},
	"transfer_reset": {
		def:     resetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReset },
	},
	"transfer_show": {
		def:     showToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShow },
	},
	"transfer_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"transfer_history": {
		def:     historyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistory },
	},
	"transfer_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"transfer_purge": {
		def:     purgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge },
	},
}

// AllToolNames returns a sorted list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the transfer tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(store session.Backend, cfg *config.Config, log *logger.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"transferbot",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	h := NewHandlers(store, cfg, log)

	disabled := make(map[string]bool)
	for _, name := range h.cfg.DisabledTools {
		disabled[name] = true
	}
	for _, name := range ValidateDisabledTools(h.cfg.DisabledTools) {
		h.log.Warn("Unknown tool in disabled_tools", logger.String("tool", name))
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, tagged(entry.handler(h)))
	}

	return s
}

// tagged marks tool calls as MCP traffic for telemetry.
func tagged(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return next(telemetry.WithSource(ctx, "mcp"), req)
	}
}

// Run starts the MCP server using stdio transport.
func Run(store session.Backend, cfg *config.Config, log *logger.Logger, version string) error {
	s := NewServer(store, cfg, log, version)
	return server.ServeStdio(s)
}

// Package mcpsurface exposes a read-only MCP status surface over session
// and cron state. Grounded on internal/mcp/server.go's
// NewTool/AddTool/NewResource wiring and server.ServeStdio entrypoint,
// narrowed from that file's full remote-control tool surface
// (notify/ask/exec_command/etc., out of scope here) down to read-only
// status tools and resources.
package mcpsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/arcrelay/bridge/internal/cron"
	"github.com/arcrelay/bridge/internal/session"
	"github.com/arcrelay/bridge/internal/store"
)

// Server wraps an MCP server exposing status tools/resources. It holds no
// write path: every handler is a read-only lookup over the already-running
// session and cron stores.
type Server struct {
	mcpServer *server.MCPServer
	sessions  *session.Manager
	cronStore *store.Store[cron.Document]
}

func New(sessions *session.Manager, cronStore *store.Store[cron.Document]) *Server {
	s := &Server{
		sessions:  sessions,
		cronStore: cronStore,
	}

	mcpServer := server.NewMCPServer(
		"arcrelay-status",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)
	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	sessionStatusTool := mcp.NewTool("session_status",
		mcp.WithDescription("Get the session envelope for a chat id: active provider/model and per-provider buckets"),
		mcp.WithString("chat_id", mcp.Required(), mcp.Description("The chat id key")),
	)
	mcpServer.AddTool(sessionStatusTool, s.handleSessionStatus)

	cronStatusTool := mcp.NewTool("cron_status",
		mcp.WithDescription("List cron jobs with their last-run status"),
	)
	mcpServer.AddTool(cronStatusTool, s.handleCronStatus)
}

func (s *Server) registerResources(mcpServer *server.MCPServer) {
	res := mcp.NewResource("arcrelay://cron-jobs", "Current cron job list with status")
	mcpServer.AddResource(res, s.handleCronResource)
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	chatID, _ := args["chat_id"].(string)
	if chatID == "" {
		return mcp.NewToolResultError("chat_id parameter is required"), nil
	}

	env := s.sessions.Get(chatID)
	data, err := json.Marshal(env)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleCronStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var doc cron.Document
	s.cronStore.View(func(d cron.Document) { doc = d })
	data, err := json.Marshal(doc.Jobs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode jobs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleCronResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var doc cron.Document
	s.cronStore.View(func(d cron.Document) { doc = d })
	data, err := json.Marshal(doc.Jobs)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// Run serves the status surface over stdio explicit
// carve-out of the interactive setup/install flows but not of a read-only
// status channel for external MCP clients.
func (s *Server) Run(ctx context.Context) error {
	return server.ServeStdio(s.mcpServer)
}

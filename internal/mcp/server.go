// Package mcp exposes the engine's single `flow` operation over the
// Model Context Protocol so tool-calling clients can list and execute
// workflows.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/taehoon/flowkit/internal/adapter"
)

// getArgs extracts arguments from request as map[string]any.
func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

// Server wraps an MCP server around the flow adapter.
type Server struct {
	mcpServer *server.MCPServer
	adapter   *adapter.Adapter
}

// NewServer creates the MCP server and registers the flow tool.
func NewServer(a *adapter.Adapter, version string) *Server {
	s := &Server{adapter: a}

	mcpServer := server.NewMCPServer(
		"flowkit",
		version,
		server.WithToolCapabilities(true),
	)

	flowTool := mcp.NewTool("flow",
		mcp.WithDescription("Execute a named workflow, or list available workflows when flow_name is \"list\""),
		mcp.WithString("flow_name",
			mcp.Required(),
			mcp.Description("Workflow name to execute, or \"list\" for discovery"),
		),
		mcp.WithObject("parameters",
			mcp.Description("Workflow parameters as key/value pairs"),
		),
		mcp.WithString("format",
			mcp.Description("Response format"),
			mcp.Enum("json", "yaml", "table"),
		),
		mcp.WithBoolean("verbose",
			mcp.Description("Include declared parameters in discovery output"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Validate the workflow and parameters without dispatching any action"),
		),
	)
	mcpServer.AddTool(flowTool, s.handleFlow)

	s.mcpServer = mcpServer
	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	req := adapter.Request{}
	req.FlowName, _ = args["flow_name"].(string)
	if params, ok := args["parameters"].(map[string]any); ok {
		req.Parameters = params
	}
	if format, ok := args["format"].(string); ok {
		req.Format = adapter.Format(format)
	}
	req.Verbose, _ = args["verbose"].(bool)
	req.DryRun, _ = args["dry_run"].(bool)

	resp, err := s.adapter.Handle(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp.Rendered), nil
}

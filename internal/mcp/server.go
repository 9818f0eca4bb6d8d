// Package mcp exposes the research orchestrator as MCP tools so other
// agents can start, watch, and cancel sessions over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/briefd/briefd/internal/sessions"
	"github.com/briefd/briefd/internal/stream"
)

// Server wraps the session manager and exposes it as MCP tools.
type Server struct {
	manager  *sessions.Manager
	streamer *stream.Streamer
}

// NewServer creates the MCP server wrapper.
func NewServer(manager *sessions.Manager, streamer *stream.Streamer) *Server {
	return &Server{manager: manager, streamer: streamer}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("briefd", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.startTool())
	srv.AddTool(s.statusTool())
	srv.AddTool(s.cancelTool())
	srv.AddTool(s.listTool())
	srv.AddTool(s.eventsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// research_start
func (s *Server) startTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("research_start",
		mcp.WithDescription("Start a research session for a topic. Returns the session id; the session runs in the background."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Research topic")),
		mcp.WithString("extra_prompt", mcp.Description("Additional instructions for the agent")),
	)
	return tool, s.handleStart
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := request.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: topic"), nil
	}
	extraPrompt := request.GetString("extra_prompt", "")

	id := s.manager.Create(topic, extraPrompt)
	return mcp.NewToolResultText(fmt.Sprintf(`{"session_id":%q}`, id)), nil
}

// research_status
func (s *Server) statusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("research_status",
		mcp.WithDescription("Get the current status and result of a research session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleStatus
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	sess, err := s.manager.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", id)), nil
	}

	data, err := json.Marshal(sess.Summary())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// research_cancel
func (s *Server) cancelTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("research_cancel",
		mcp.WithDescription("Request cooperative cancellation of a running research session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleCancel
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	switch err := s.manager.Cancel(id); {
	case err == nil:
		return mcp.NewToolResultText(fmt.Sprintf(`{"session_id":%q,"status":"cancelling"}`, id)), nil
	case errors.Is(err, sessions.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", id)), nil
	case errors.Is(err, sessions.ErrAlreadyTerminal):
		return mcp.NewToolResultError(fmt.Sprintf("session already terminal: %s", id)), nil
	default:
		return mcp.NewToolResultError(err.Error()), nil
	}
}

// research_list
func (s *Server) listTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("research_list",
		mcp.WithDescription("List research sessions, most recent first. Returns a JSON array with id, topic, status, and timestamps."),
	)
	return tool, s.handleList
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.manager.List())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// research_events
func (s *Server) eventsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("research_events",
		mcp.WithDescription("Return the full event log of a research session so far, in seq order."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleEvents
}

func (s *Server) handleEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	events, err := s.streamer.Events(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", id)), nil
	}

	data, err := json.Marshal(events)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal events: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/briefd/briefd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients drive research sessions natively. Configure with:

  {
    "mcpServers": {
      "briefd": { "command": "briefd", "args": ["mcp"] }
    }
  }

Available tools: research_start, research_status, research_cancel,
research_list, research_events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = o.Close() }()

		srv := mcp.NewServer(o.manager, o.streamer)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	rmcp "github.com/rolekeeper/rolekeeper/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
		readOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the role editor as
tools for AI agents. Supports stdio (default) and HTTP transports.

In stdio mode the server talks JSON-RPC over stdin/stdout, suitable for MCP
clients that launch it as a subprocess.

In HTTP mode it listens on the given port using Streamable HTTP.`,
		Example: `  rolekeeper mcp                             # stdio mode
  rolekeeper mcp --transport http --port 3001  # Streamable HTTP
  rolekeeper mcp --read-only                   # no add/remove/save tools`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			if !cmd.Flags().Changed("transport") && ws.cfg.MCP.Transport != "" {
				transport = ws.cfg.MCP.Transport
			}
			srv := rmcp.NewMCPServer(ws.session, ws.store, rmcp.Options{
				Version:  versionString(),
				ReadOnly: readOnly || ws.cfg.MCP.ReadOnly,
			}, ws.logger)

			switch transport {
			case "stdio":
				return srv.ServeStdio()
			case "http":
				return srv.ServeHTTP(fmt.Sprintf(":%d", port))
			default:
				return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Hide tools that edit or save the metadata")

	return cmd
}

package cmd

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"pfctl/internal/mcptools"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the port forward tools over MCP stdio",
		Long: `Runs an MCP server on stdin/stdout exposing the portforward_list,
portforward_start, portforward_stop and portforward_delete tools, so AI
assistants can manage forwards through the running agent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDeps()
			if err != nil {
				return err
			}
			defer d.Close()

			tools := mcptools.New(d.client, d.store, d.newController)
			if err := server.ServeStdio(mcptools.NewServer(rootCmd.Version, tools)); err != nil {
				return fmt.Errorf("MCP server stopped: %w", err)
			}
			return nil
		},
	}
}

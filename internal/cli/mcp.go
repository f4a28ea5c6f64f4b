package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/riskdesk/internal/actions"
	rdkmcp "github.com/valter-silva-au/riskdesk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the rdk MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rdk MCP server on stdio",
	Long: `Start the rdk MCP server on stdio transport.

The server exposes riskdesk as MCP tools that AI assistants can call:
list_projects, list_documents, get_stats, rebuild_knowledge_base,
get_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}

		// stdout carries the protocol, so notices are only recorded.
		orch := newOrchestrator(orchestratorOpts{
			confirm: actions.AlwaysConfirm,
			notify:  &actions.Recorder{},
		})
		srv := rdkmcp.NewServer(Backend, orch, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

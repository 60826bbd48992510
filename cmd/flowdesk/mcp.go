package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/flowdesk/internal/streaming"
	"github.com/rendis/flowdesk/internal/validation"
	flowmcp "github.com/rendis/flowdesk/pkg/mcp"
)

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp <flow-id>",
		Short: "Expose an editing session to agents over MCP (stdio)",
		Long: "Open a flow and serve the flowdesk.* tools over stdio. Logs go to stderr; " +
			"unsaved edits are kept in the local draft.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			hub := streaming.NewMemoryHub()
			e, _, err := a.openEditor(ctx, args[0], hub)
			if err != nil {
				return err
			}
			v, err := validation.NewDiagramValidator()
			if err != nil {
				return err
			}
			srv := flowmcp.NewFlowdeskServer(flowmcp.FlowdeskServerDeps{
				Editor:    e,
				Saver:     a.api,
				Validator: v,
				Hub:       hub,
				Logger:    a.logger,
			})
			return srv.Serve(ctx)
		},
	}
}

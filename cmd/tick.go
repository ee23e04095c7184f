package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagewatch/internal/server"
)

func newTickCmd() *cobra.Command {
	var ownerID, targetID string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one batch pass and print the summary.",
		Long: `tick checks every active target once. --owner limits the batch to one
owner's targets and --target runs a single manual check instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, func(ctx context.Context, app *server.App) (any, error) {
				orch := app.Orchestrator()
				switch {
				case targetID != "":
					return orch.CheckTarget(ctx, targetID)
				case ownerID != "":
					return orch.TickOwner(ctx, ownerID)
				default:
					return orch.Tick(ctx)
				}
			})
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "only check targets owned by this owner")
	cmd.Flags().StringVar(&targetID, "target", "", "run a manual check of one target")
	cmd.MarkFlagsMutuallyExclusive("owner", "target")
	return cmd
}

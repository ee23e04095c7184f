package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagewatch/internal/server"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete snapshots and alerts past each plan's retention window.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, func(ctx context.Context, app *server.App) (any, error) {
				return app.Sweeper().Run(ctx)
			})
		},
	}
}

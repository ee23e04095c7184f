package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the in-process scheduler.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return appFrom(cmd).Run(cmd.Context())
		},
	}
}

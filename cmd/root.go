// Package cmd implements the pagewatch command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/server"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests swap it out.
var newApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
	return server.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "pagewatch",
		Short: "Watches web pages for meaningful changes.",
		Long: `pagewatch re-fetches tracked pages on a schedule, normalizes their text,
and raises alerts when pricing, plans or features change.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); PAGEWATCH_* env vars override it")
	cmd.AddCommand(newServeCmd(), newTickCmd(), newSweepCmd())
	return cmd
}

func appFrom(cmd *cobra.Command) *server.App {
	app, _ := cmd.Context().Value(appKey).(*server.App)
	return app
}

// runOnce executes fn against the app and closes it afterwards.
func runOnce(cmd *cobra.Command, fn func(ctx context.Context, app *server.App) (any, error)) error {
	app := appFrom(cmd)
	defer func() {
		if err := app.Close(context.WithoutCancel(cmd.Context())); err != nil {
			app.Logger().Warn("close failed", zap.Error(err))
		}
	}()
	result, err := fn(cmd.Context(), app)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

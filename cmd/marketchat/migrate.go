package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/marketline/marketchat/internal/schema"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply migrations and heal the chat tables, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		var gate *schema.Gate
		app := fx.New(coreModule(), fx.Populate(&gate))
		if err := app.Err(); err != nil {
			return err
		}
		return runOnce(cmd.Context(), app, func(ctx context.Context) error {
			report, err := gate.Repair(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "chat schema: %s\n", report)
			return err
		})
	},
}

// runOnce starts app, runs fn and stops app again, keeping fn's error.
func runOnce(ctx context.Context, app *fx.App, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)
	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/marketline/marketchat/internal/audit"
)

var auditConversation string

var auditCmd = &cobra.Command{
	Use:   "audit-unread",
	Short: "Recompute unread counters once and print the corrections",
	RunE: func(cmd *cobra.Command, args []string) error {
		var svc *audit.Service
		app := fx.New(coreModule(), fx.Populate(&svc))
		if err := app.Err(); err != nil {
			return err
		}
		return runOnce(cmd.Context(), app, func(ctx context.Context) error {
			drift, err := svc.RunOnce(ctx, auditConversation)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range drift {
				fmt.Fprintf(out, "%s %s: %d -> %d\n", d.ConversationID, d.UserID, d.Previous, d.Current)
			}
			fmt.Fprintf(out, "%s counters corrected\n", humanize.Comma(int64(len(drift))))
			return nil
		})
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditConversation, "conversation", "", "only audit this conversation id")
}

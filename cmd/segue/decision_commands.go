package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"segue/internal/ipc"
)

func newProceedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "proceed",
		Short: "Accept the offered update and start the download",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Proceed()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), decisionMessage(resp.Message, "Proceed requested"))
				return nil
			})
		},
	}
}

func newDismissCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss",
		Short: "Decline the offered update",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Dismiss()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), decisionMessage(resp.Message, "Dismiss requested"))
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Abort the active update session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), decisionMessage(resp.Message, "Cancellation requested"))
				return nil
			})
		},
	}
}

func decisionMessage(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}

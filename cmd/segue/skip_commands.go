package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"segue/internal/api"
	"segue/internal/ipc"
)

func newSkipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <version>",
		Short: "Exclude a version from update offers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Skip(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Version %s will be skipped\n", resp.Version)
				return nil
			})
		},
	}
}

func newUnskipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unskip <version>",
		Short: "Remove a version from the skip list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Unskip(args[0])
				if err != nil {
					return err
				}
				if resp.Removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Version %s removed from the skip list\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Version %s was not on the skip list\n", args[0])
				}
				return nil
			})
		},
	}
}

func newSkippedCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "skipped",
		Short: "List versions excluded from update offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Skipped()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.SkippedResponse{Versions: resp.Versions})
				}
				if len(resp.Versions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No versions are skipped")
					return nil
				}
				table := renderTable(
					[]string{"Version", "Skipped"},
					buildSkippedRows(resp.Versions),
					[]columnAlignment{alignLeft, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the skip list as JSON")
	return cmd
}

func buildSkippedRows(versions []api.SkippedVersionView) [][]string {
	rows := make([][]string, 0, len(versions))
	for _, entry := range versions {
		rows = append(rows, []string{entry.Version, formatWhen(entry.SkippedAt)})
	}
	return rows
}

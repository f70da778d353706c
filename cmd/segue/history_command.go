package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"segue/internal/api"
	"segue/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent update sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.HistoryResponse{Sessions: resp.Sessions})
				}
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No update sessions recorded")
					return nil
				}
				table := renderTable(
					[]string{"When", "Trigger", "Versions", "Outcome", "Size"},
					buildHistoryRows(resp.Sessions),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit history as JSON")
	return cmd
}

func buildHistoryRows(sessions []api.SessionView) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, []string{
			formatWhen(session.CreatedAt),
			session.Trigger,
			formatVersionChange(session),
			sessionOutcomeText(session),
			formatSize(session.BytesTotal),
		})
	}
	return rows
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"segue/internal/api"
	"segue/internal/daemonctl"
	"segue/internal/history"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, session, and environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := daemonctl.StatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, view)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if view.Running {
				fmt.Fprintln(stdout, renderStatusLine("Running", statusOK, fmt.Sprintf("pid %d", view.PID), colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Running", statusWarn, "daemon is not running", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, view.DatabasePath, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Application", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("App", statusInfo, valueOrDash(view.AppName), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Channel", statusInfo, view.Channel, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Installed version", statusInfo, valueOrDash(view.CurrentVersion), colorize))
			if view.Staging != nil {
				fmt.Fprintln(stdout, renderStatusLine("Staging usage", statusInfo, formatStagingUsage(*view.Staging), colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Update Session", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range sessionSectionLines(view, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if len(view.Preflight) == 0 {
				fmt.Fprintln(stdout, statusIndent+"No preflight results available")
			}
			for _, check := range view.Preflight {
				fmt.Fprintln(stdout, renderStatusLine(check.Name, preflightKind(check.Passed), check.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Session History", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildSessionStatsRows(view.Stats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No sessions recorded")
				return nil
			}
			table := renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprint(stdout, table)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}

func sessionSectionLines(view *api.StatusView, colorize bool) []string {
	if view.Session != nil {
		session := *view.Session
		lines := []string{
			renderStatusLine("State", statusInfo, session.State, colorize),
			renderStatusLine("Versions", statusInfo, formatVersionChange(session), colorize),
		}
		switch session.State {
		case string(history.StateUpdateAvailable):
			lines = append(lines, renderStatusLine("Awaiting", statusWarn, "decision (run `segue proceed` or `segue dismiss`)", colorize))
		case string(history.StateDownloading):
			lines = append(lines, renderStatusLine("Progress", statusInfo, formatProgress(session), colorize))
		}
		return lines
	}

	lines := []string{statusIndent + "No update session is active"}
	if view.LastSession != nil {
		last := *view.LastSession
		kind := statusInfo
		switch last.Outcome {
		case history.OutcomeInstalled, history.OutcomeUpToDate:
			kind = statusOK
		case history.OutcomeFailed:
			kind = statusError
		}
		message := sessionOutcomeText(last)
		if when := formatWhen(lastSessionTimestamp(last)); when != "-" {
			message = fmt.Sprintf("%s (%s)", message, when)
		}
		lines = append(lines, renderStatusLine("Last outcome", kind, message, colorize))
	}
	return lines
}

func lastSessionTimestamp(session api.SessionView) string {
	if session.FinishedAt != "" {
		return session.FinishedAt
	}
	return session.UpdatedAt
}

func buildSessionStatsRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(stats))
	for _, state := range history.AllStates() {
		count, ok := stats[string(state)]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{formatStateLabel(string(state)), strconv.Itoa(count)})
	}
	return rows
}

// formatStateLabel turns snake_case state names into display labels.
func formatStateLabel(state string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(state, "_", " "))
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

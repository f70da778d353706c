package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"segue/internal/api"
	"segue/internal/history"
	"segue/internal/ipc"
)

// sessionPollInterval is how often check/update poll the daemon while a
// session is in flight.
const sessionPollInterval = 250 * time.Millisecond

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the release feed for a newer version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Check(history.TriggerManual)
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("check response missing")
				}

				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Checking %s channel for updates...\n", resp.Session.Channel)

				final, err := waitForSessionChange(cmd.Context(), client, resp.Session.ID, history.StateChecking)
				if err != nil {
					return err
				}
				return reportCheckResult(stdout, final)
			})
		},
	}
}

// waitForSessionChange polls the daemon until the session leaves the given
// state or finishes. It returns the first snapshot past that point.
func waitForSessionChange(ctx context.Context, client *ipc.Client, sessionID string, state history.State) (api.SessionView, error) {
	ticker := time.NewTicker(sessionPollInterval)
	defer ticker.Stop()

	for {
		status, err := client.Status()
		if err != nil {
			return api.SessionView{}, err
		}
		view := status.Status
		if view.Session != nil && view.Session.ID == sessionID {
			if view.Session.State != string(state) {
				return *view.Session, nil
			}
		} else if view.LastSession != nil && view.LastSession.ID == sessionID {
			return *view.LastSession, nil
		}

		select {
		case <-ctx.Done():
			return api.SessionView{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func reportCheckResult(out io.Writer, session api.SessionView) error {
	switch session.State {
	case string(history.StateUpdateAvailable):
		if session.FinishedAt == "" {
			fmt.Fprintf(out, "Update available: %s\n", formatVersionChange(session))
			fmt.Fprintln(out, "Run `segue update` to install, `segue dismiss` to decline, or `segue skip` to ignore this version.")
			return nil
		}
	case string(history.StateDownloading), string(history.StateVerified), string(history.StateInstalling):
		fmt.Fprintf(out, "Update available: %s\n", formatVersionChange(session))
		fmt.Fprintln(out, "Download already in progress; follow it with `segue update` or `segue status`.")
		return nil
	}

	switch session.Outcome {
	case history.OutcomeUpToDate:
		fmt.Fprintf(out, "Already up to date (version %s)\n", session.CurrentVersion)
	case history.OutcomeFailed:
		return fmt.Errorf("check failed: %s", sessionFailureText(session))
	case history.OutcomeCancelled:
		fmt.Fprintln(out, "Check cancelled")
	case history.OutcomeInstalled:
		fmt.Fprintf(out, "Update installed: %s\n", formatVersionChange(session))
	case history.OutcomeDismissed:
		fmt.Fprintln(out, "Update dismissed")
	default:
		fmt.Fprintf(out, "Session ended in state %s\n", session.State)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"segue/internal/api"
	"segue/internal/history"
	"segue/internal/ipc"
)

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Check for an update, install it, and follow progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()
				sessionID, err := ensureUpdateSession(client, stdout)
				if err != nil {
					return err
				}
				return followSession(cmd.Context(), client, stdout, sessionID)
			})
		},
	}
}

// ensureUpdateSession starts a manual check, or adopts the session already in
// flight when the daemon rejects the check as busy.
func ensureUpdateSession(client *ipc.Client, out io.Writer) (string, error) {
	resp, err := client.Check(history.TriggerManual)
	if err == nil {
		if resp == nil {
			return "", errors.New("check response missing")
		}
		fmt.Fprintf(out, "Checking %s channel for updates...\n", resp.Session.Channel)
		return resp.Session.ID, nil
	}

	status, statusErr := client.Status()
	if statusErr == nil && status.Status.Session != nil {
		fmt.Fprintln(out, "Joining the update session already in progress...")
		return status.Status.Session.ID, nil
	}
	return "", err
}

// followSession tracks a session to its end, accepting the offer when one
// appears and rendering download progress along the way.
func followSession(ctx context.Context, client *ipc.Client, out io.Writer, sessionID string) error {
	ticker := time.NewTicker(sessionPollInterval)
	defer ticker.Stop()

	var bar *progressbar.ProgressBar
	finishBar := func() {
		if bar != nil {
			_ = bar.Finish()
			bar = nil
		}
	}
	defer finishBar()

	lastState := ""
	proceedSent := false

	for {
		status, err := client.Status()
		if err != nil {
			return err
		}
		view := status.Status

		var session *api.SessionView
		if view.Session != nil && view.Session.ID == sessionID {
			session = view.Session
		} else if view.LastSession != nil && view.LastSession.ID == sessionID {
			finishBar()
			return reportFinalSession(out, *view.LastSession)
		}

		if session != nil {
			if session.State != lastState {
				lastState = session.State
				switch session.State {
				case string(history.StateUpdateAvailable):
					if !proceedSent {
						fmt.Fprintf(out, "Update available: %s\n", formatVersionChange(*session))
						if err := acceptOffer(client, sessionID); err != nil {
							return err
						}
						fmt.Fprintln(out, "Starting download...")
						proceedSent = true
					}
				case string(history.StateDownloading):
					if bar == nil {
						bar = newDownloadBar(out, session.CandidateVersion, session.BytesTotal)
					}
				case string(history.StateVerified):
					finishBar()
					fmt.Fprintln(out, "Download verified")
				case string(history.StateInstalling):
					fmt.Fprintln(out, "Installing...")
				case string(history.StateRestartPending), string(history.StateFailed), string(history.StateCancelled):
					finishBar()
					return reportFinalSession(out, *session)
				}
			}
			if session.State == string(history.StateDownloading) && bar != nil {
				if session.BytesTotal > 0 && bar.GetMax64() != session.BytesTotal {
					bar.ChangeMax64(session.BytesTotal)
				}
				_ = bar.Set64(session.BytesDone)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// acceptOffer sends Proceed, tolerating the race where the daemon accepted
// the offer on its own between polls.
func acceptOffer(client *ipc.Client, sessionID string) error {
	_, err := client.Proceed()
	if err == nil {
		return nil
	}
	refreshed, statusErr := client.Status()
	if statusErr == nil {
		session := refreshed.Status.Session
		if session == nil || session.ID != sessionID || session.State != string(history.StateUpdateAvailable) {
			return nil
		}
	}
	return fmt.Errorf("accept update: %w", err)
}

func newDownloadBar(out io.Writer, candidate string, total int64) *progressbar.ProgressBar {
	description := "Downloading"
	if strings.TrimSpace(candidate) != "" {
		description = fmt.Sprintf("Downloading %s", candidate)
	}
	if total <= 0 {
		total = -1
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func reportFinalSession(out io.Writer, session api.SessionView) error {
	switch session.State {
	case string(history.StateRestartPending):
		fmt.Fprintf(out, "Update installed: %s\n", formatVersionChange(session))
		fmt.Fprintln(out, "Restart pending; the new version takes effect once the application restarts.")
		return nil
	case string(history.StateFailed):
		return fmt.Errorf("update failed: %s", sessionFailureText(session))
	case string(history.StateCancelled):
		fmt.Fprintln(out, "Update cancelled")
		return nil
	}

	switch session.Outcome {
	case history.OutcomeUpToDate:
		fmt.Fprintf(out, "Already up to date (version %s)\n", session.CurrentVersion)
	case history.OutcomeDismissed:
		fmt.Fprintln(out, "Update dismissed")
	default:
		fmt.Fprintf(out, "Session ended in state %s\n", session.State)
	}
	return nil
}

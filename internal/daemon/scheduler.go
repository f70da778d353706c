package daemon

import (
	"context"
	"errors"
	"time"

	"segue/internal/history"
	"segue/internal/logging"
	"segue/internal/orchestrator"
	"segue/internal/services"
	"segue/internal/staging"
)

// staleStagingAge bounds how long an abandoned staging directory survives
// between scheduled checks.
const staleStagingAge = 24 * time.Hour

// startScheduler launches the periodic check loop when an interval is
// configured. A zero interval disables scheduled checks entirely.
func (d *Daemon) startScheduler() {
	interval := d.cfg.CheckInterval()
	if interval <= 0 {
		d.logger.Info("scheduled checks disabled")
		return
	}
	d.wg.Add(1)
	go d.runScheduler(d.ctx, interval)
}

func (d *Daemon) runScheduler(ctx context.Context, interval time.Duration) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("scheduler started", logging.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("scheduler stopped")
			return
		case <-ticker.C:
			d.sweepStaleStaging(ctx)
			d.runScheduledCheck(ctx)
		}
	}
}

// sweepStaleStaging reclaims staging directories left behind by sessions
// that no longer exist. The live session's directory always survives.
func (d *Daemon) sweepStaleStaging(ctx context.Context) {
	keep := make(map[string]struct{})
	if snap := d.orch.Snapshot(); snap.Session != nil {
		keep[snap.Session.ID] = struct{}{}
	}
	staging.Sweep(ctx, d.cfg.Paths.StagingDir, keep, staleStagingAge, d.logger)
}

func (d *Daemon) runScheduledCheck(ctx context.Context) {
	session, err := d.orch.Check(ctx, history.TriggerScheduled)
	switch {
	case err == nil:
		d.logger.Info("scheduled check started",
			logging.String(logging.FieldSessionID, session.ID),
		)
	case errors.Is(err, services.ErrSessionActive):
		// A session is still running or waiting on a user decision. The
		// next tick will try again.
		d.logger.Debug("scheduled check skipped, session in progress")
	case errors.Is(err, orchestrator.ErrNotRunning):
		return
	default:
		logging.WarnWithContext(d.logger, "scheduled check failed to start", "scheduled_check_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify app.current_version and app.version_file in the config"),
			logging.String(logging.FieldImpact, "automatic update checks are not running"),
		)
	}
}

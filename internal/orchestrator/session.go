package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"segue/internal/feed"
	"segue/internal/history"
	"segue/internal/logging"
	"segue/internal/notifications"
	"segue/internal/services"
	"segue/internal/staging"
	"segue/internal/version"
)

// progressPersistInterval bounds how often download progress is written to
// the store and published to subscribers.
const progressPersistInterval = 250 * time.Millisecond

type decision int

const (
	decisionProceed decision = iota + 1
	decisionDismiss
)

// activeSession holds the in-flight session and its control handles. The
// session struct itself is guarded by the orchestrator mutex.
type activeSession struct {
	session       *history.Session
	cancel        context.CancelFunc
	decision      chan decision
	userCancelled atomic.Bool
}

// Check starts a new update session and returns a copy of it in the checking
// state. The checking row is persisted before Check returns, so a status
// query immediately afterwards sees the session. While a session is in
// flight further checks fail with the session-active marker.
func (o *Orchestrator) Check(ctx context.Context, trigger string) (history.Session, error) {
	if trigger == "" {
		trigger = history.TriggerManual
	}

	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return history.Session{}, ErrNotRunning
	}
	if o.current != nil {
		o.mu.Unlock()
		return history.Session{}, services.Wrap(services.ErrSessionActive, "orchestrator", "check", "an update session is already in progress", nil)
	}

	current, err := o.currentVersion()
	if err != nil {
		o.mu.Unlock()
		return history.Session{}, err
	}

	now := time.Now().UTC()
	session := &history.Session{
		ID:             uuid.NewString(),
		Trigger:        trigger,
		Channel:        string(o.cfg.Channel()),
		CurrentVersion: current.String(),
		State:          history.StateChecking,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	sessionCtx, cancelSession := context.WithCancel(o.runCtx)
	active := &activeSession{
		session:  session,
		cancel:   cancelSession,
		decision: make(chan decision, 1),
	}
	o.current = active
	o.wg.Add(1)
	o.mu.Unlock()

	if err := o.store.SaveSession(ctx, session); err != nil {
		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()
		cancelSession()
		o.wg.Done()
		return history.Session{}, services.Wrap(services.ErrConfiguration, "orchestrator", "check", "persist session", err)
	}

	snapshot := *session
	o.publish(Event{Kind: EventState, Session: snapshot})
	o.logger.Info("update check started",
		logging.String(logging.FieldSessionID, snapshot.ID),
		logging.String(logging.FieldTrigger, trigger),
		logging.String("channel", snapshot.Channel),
		logging.String("current_version", snapshot.CurrentVersion))

	go o.runSession(sessionCtx, active, current)
	return snapshot, nil
}

// Proceed accepts an offered update and moves the session toward downloading.
func (o *Orchestrator) Proceed(ctx context.Context) error {
	return o.decide(decisionProceed)
}

// Dismiss declines an offered update and ends the session.
func (o *Orchestrator) Dismiss(ctx context.Context) error {
	return o.decide(decisionDismiss)
}

func (o *Orchestrator) decide(d decision) error {
	active, state := o.activeState()
	if active == nil {
		return ErrNoSession
	}
	if state != history.StateUpdateAvailable {
		return fmt.Errorf("session is %s, not awaiting a decision", state)
	}
	select {
	case active.decision <- d:
		return nil
	default:
		return errors.New("a decision was already submitted")
	}
}

// Cancel aborts the session while it is checking or downloading. Later
// states are past the point of no return.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	active, state := o.activeState()
	if active == nil {
		return ErrNoSession
	}
	switch state {
	case history.StateChecking, history.StateDownloading:
	default:
		return fmt.Errorf("%w (state %s)", ErrNotCancellable, state)
	}
	active.userCancelled.Store(true)
	active.cancel()
	return nil
}

func (o *Orchestrator) activeState() (*activeSession, history.State) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return nil, ""
	}
	return o.current, o.current.session.State
}

// currentVersion resolves the installed version, preferring the version file
// over the static config value. Callers hold the orchestrator mutex.
func (o *Orchestrator) currentVersion() (version.Version, error) {
	if path := o.cfg.App.VersionFile; path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			v, parseErr := version.Parse(strings.TrimSpace(string(raw)))
			if parseErr != nil {
				return version.Version{}, fmt.Errorf("version file %s: %w", path, parseErr)
			}
			return v, nil
		case !os.IsNotExist(err):
			return version.Version{}, services.Wrap(services.ErrConfiguration, "orchestrator", "check", "read version file", err)
		}
	}
	v, err := version.Parse(o.cfg.App.CurrentVersion)
	if err != nil {
		return version.Version{}, fmt.Errorf("configured current_version: %w", err)
	}
	return v, nil
}

// runSession drives one update session from checking to a terminal state.
// ctx is cancelled by Cancel and by daemon shutdown; bookkeeping writes use a
// detached context so terminal states reach the store either way.
func (o *Orchestrator) runSession(ctx context.Context, active *activeSession, current version.Version) {
	defer o.wg.Done()

	// Collaborators that log through this ctx pick the session identity up
	// from it, so their records correlate without a shared logger.
	ctx = services.WithSessionID(ctx, active.session.ID)
	ctx = services.WithTrigger(ctx, active.session.Trigger)
	bookCtx := context.WithoutCancel(ctx)
	log := o.logger.With(logging.String(logging.FieldSessionID, active.session.ID))
	defer o.releaseSession(active, log)

	// Fresh per-session staging area. Leftovers from an earlier run with the
	// same ID must not leak into this session.
	if err := staging.Remove(o.cfg.Paths.StagingDir, active.session.ID); err != nil {
		log.Warn("clear stale staging directory", logging.Error(err))
	}
	stagingDir, err := staging.Create(o.cfg.Paths.StagingDir, active.session.ID)
	if err != nil {
		o.failSession(bookCtx, active, services.Wrap(services.ErrConfiguration, "orchestrator", "staging", "create staging directory", err), "prepare staging", log)
		return
	}

	candidate := o.runCheck(ctx, bookCtx, active, current, log)
	if candidate == nil {
		return
	}
	if !o.awaitDecision(ctx, bookCtx, active, log) {
		return
	}
	staged := o.runDownload(ctx, bookCtx, active, *candidate, stagingDir, log)
	if staged == "" {
		return
	}
	o.runInstall(ctx, bookCtx, active, *candidate, staged, log)
}

// runCheck fetches the feed, drops skipped versions, and offers the best
// eligible candidate. A nil return means the session already reached its end
// (up to date, cancelled, failed, or shutdown).
func (o *Orchestrator) runCheck(ctx, bookCtx context.Context, active *activeSession, current version.Version, log *slog.Logger) *feed.Candidate {
	ctx = services.WithPhase(ctx, "check")
	candidates, err := o.source.Fetch(ctx)
	if err != nil {
		if o.interrupted(bookCtx, active, err, log) {
			return nil
		}
		o.failSession(bookCtx, active, err, "check for updates", log)
		return nil
	}

	kept := make([]feed.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.Version.WithoutBuild().String()
		skipped, err := o.store.IsSkipped(bookCtx, key)
		if err != nil {
			log.Warn("skip lookup failed", logging.String("version", key), logging.Error(err))
		}
		if skipped {
			log.Debug("candidate skipped by user", logging.String("version", key))
			continue
		}
		kept = append(kept, c)
	}

	best := feed.SelectBest(kept, current, o.cfg.Channel())
	if best == nil {
		o.finish(bookCtx, active)
		log.Info("no update available",
			logging.String(logging.FieldEventType, "up_to_date"),
			logging.String("current_version", current.String()))
		return nil
	}

	snapshot := o.transition(bookCtx, active, history.StateUpdateAvailable, func(s *history.Session) {
		s.CandidateVersion = best.Version.String()
	})
	log.Info("update available",
		logging.String(logging.FieldEventType, "update_available"),
		logging.String("candidate_version", snapshot.CandidateVersion),
		logging.Int64("size_bytes", best.Size))
	o.notify(bookCtx, notifications.EventUpdateAvailable, notifications.Payload{
		"version":   best.DisplayName(),
		"current":   current.String(),
		"notes_url": best.NotesURL,
	})
	return best
}

// awaitDecision blocks in update_available until the user proceeds or
// dismisses. With auto_download enabled the offer is accepted immediately.
func (o *Orchestrator) awaitDecision(ctx, bookCtx context.Context, active *activeSession, log *slog.Logger) bool {
	if o.cfg.Updates.AutoDownload {
		log.Info("auto download enabled, proceeding", logging.String(logging.FieldDecisionType, "auto"))
		return true
	}
	select {
	case d := <-active.decision:
		if d == decisionProceed {
			log.Info("update accepted", logging.String(logging.FieldDecisionType, "proceed"))
			return true
		}
		o.finish(bookCtx, active)
		log.Info("update dismissed", logging.String(logging.FieldDecisionType, "dismiss"))
		return false
	case <-ctx.Done():
		if active.userCancelled.Load() {
			// A cancel that raced the transition into update_available.
			// Cancelled is not reachable from here, so record a dismissal.
			o.finish(bookCtx, active)
			log.Info("cancel arrived during offer, recorded as dismissed")
			return false
		}
		log.Info("session interrupted during offer")
		return false
	}
}

// runDownload stages the artifact and reports the staged path, or "" when
// the session ended. Progress updates are throttled before they hit the
// store and the log.
func (o *Orchestrator) runDownload(ctx, bookCtx context.Context, active *activeSession, candidate feed.Candidate, dir string, log *slog.Logger) string {
	ctx = services.WithPhase(ctx, "download")
	o.transition(bookCtx, active, history.StateDownloading, func(s *history.Session) {
		s.BytesTotal = candidate.Size
	})

	sampler := logging.NewProgressSampler(0)
	var lastPersist time.Time
	progress := func(done, total int64) {
		o.mu.Lock()
		active.session.SetProgress(done, total)
		active.session.UpdatedAt = time.Now().UTC()
		snapshot := *active.session
		o.mu.Unlock()

		if done == total || time.Since(lastPersist) >= progressPersistInterval {
			lastPersist = time.Now()
			o.persist(bookCtx, snapshot)
			o.publish(Event{Kind: EventProgress, Session: snapshot})
		}
		if pct := snapshot.Progress * 100; sampler.ShouldLog(pct, "download") {
			log.Info("download progress",
				logging.Float64(logging.FieldProgressPercent, pct),
				logging.Int64("bytes_done", done),
				logging.Int64("bytes_total", total))
		}
	}

	staged, err := o.stager.Stage(ctx, candidate, dir, progress)
	if err != nil {
		if o.interrupted(bookCtx, active, err, log) {
			return ""
		}
		o.failSession(bookCtx, active, err, "download update", log)
		return ""
	}

	snapshot := o.transition(bookCtx, active, history.StateVerified, func(s *history.Session) {
		s.StagedPath = staged
	})
	log.Info("artifact staged and verified",
		logging.String(logging.FieldEventType, "download_verified"),
		logging.String("path", staged))
	o.notify(bookCtx, notifications.EventDownloadCompleted, notifications.Payload{
		"version": snapshot.CandidateVersion,
	})
	return staged
}

// runInstall applies the staged artifact. Once installing begins the session
// cannot be cancelled; apply failures roll back to the previous binary.
func (o *Orchestrator) runInstall(ctx, bookCtx context.Context, active *activeSession, candidate feed.Candidate, staged string, log *slog.Logger) {
	o.transition(bookCtx, active, history.StateInstalling, nil)

	// Shutdown and cancel wait the install out rather than interrupt it.
	installCtx := services.WithPhase(context.WithoutCancel(ctx), "install")

	if err := o.installer.Apply(installCtx, staged); err != nil {
		o.rollback(bookCtx, installCtx, active, err, log)
		return
	}
	if err := o.installer.Verify(installCtx); err != nil {
		// The replacement is in place but does not verify. Restoring the
		// backup on top of it could make things worse; leave the tree for
		// an operator and flag the session fatal.
		wrapped := services.Wrap(services.ErrFatal, "orchestrator", "install", "installed binary failed verification", err)
		o.failSession(bookCtx, active, wrapped, "verify install", log)
		return
	}
	if err := o.installer.RecordVersion(candidate.Version); err != nil {
		log.Warn("record installed version", logging.Error(err))
	}

	snapshot := o.transition(bookCtx, active, history.StateRestartPending, func(s *history.Session) {
		s.MarkFinished(time.Now().UTC())
	})
	log.Info("update installed",
		logging.String(logging.FieldEventType, "update_installed"),
		logging.String("version", snapshot.CandidateVersion))
	o.notify(bookCtx, notifications.EventUpdateInstalled, notifications.Payload{
		"version": snapshot.CandidateVersion,
	})

	if o.cfg.Updates.AutoRestart {
		if err := o.installer.Restart(installCtx); err != nil {
			// The install itself succeeded. Record the restart problem on
			// the finished session without disturbing its state.
			log.Error("restart command failed", logging.Error(err), logging.Alert("restart_failure"))
			o.mu.Lock()
			active.session.ErrorMessage = fmt.Sprintf("installed, but restart failed: %v", err)
			persisted := *active.session
			o.mu.Unlock()
			o.persist(bookCtx, persisted)
		}
	}
}

// rollback restores the previous binary after a failed apply. A rollback
// failure leaves the installation in an unknown state and is flagged fatal.
func (o *Orchestrator) rollback(bookCtx, installCtx context.Context, active *activeSession, applyErr error, log *slog.Logger) {
	log.Error("apply failed, restoring previous binary", logging.Error(applyErr), logging.Alert("install_failure"))
	if rbErr := o.installer.Rollback(installCtx); rbErr != nil {
		wrapped := services.Wrap(services.ErrFatal, "orchestrator", "install",
			fmt.Sprintf("rollback failed after apply error (%v)", applyErr), rbErr)
		o.failSession(bookCtx, active, wrapped, "roll back install", log)
		return
	}
	o.failSessionEvent(bookCtx, active, applyErr, "apply update", notifications.EventRolledBack, log)
}

// interrupted handles a context cancellation surfacing from a cancellable
// phase. It reports true when the session should stop; the cancelled state
// is recorded only for user-requested cancels, so sessions interrupted by
// shutdown stay open for recovery on the next start.
func (o *Orchestrator) interrupted(bookCtx context.Context, active *activeSession, err error, log *slog.Logger) bool {
	if !errors.Is(err, context.Canceled) {
		return false
	}
	if active.userCancelled.Load() {
		o.transition(bookCtx, active, history.StateCancelled, func(s *history.Session) {
			s.MarkFinished(time.Now().UTC())
		})
		log.Info("session cancelled", logging.String(logging.FieldEventType, "session_cancelled"))
	} else {
		log.Info("session interrupted by shutdown")
	}
	return true
}

// failSession records a failed terminal state, logs it, and notifies.
func (o *Orchestrator) failSession(ctx context.Context, active *activeSession, err error, operation string, log *slog.Logger) {
	o.failSessionEvent(ctx, active, err, operation, notifications.EventUpdateFailed, log)
}

func (o *Orchestrator) failSessionEvent(ctx context.Context, active *activeSession, err error, operation string, event notifications.Event, log *slog.Logger) {
	kind := services.FailureKind(err)

	o.mu.Lock()
	session := active.session
	session.SetFailed(err.Error(), string(kind))
	session.MarkFinished(time.Now().UTC())
	session.UpdatedAt = *session.FinishedAt
	snapshot := *session
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	o.publish(Event{Kind: EventState, Session: snapshot})

	logging.ErrorWithContext(log, "update session failed", "session_failure",
		logging.Error(err),
		logging.String(logging.FieldErrorCode, string(kind)),
		logging.String("operation", operation),
		logging.Alert("session_failure"))

	o.notify(ctx, event, notifications.Payload{
		"error":   err,
		"context": operation,
		"version": snapshot.CandidateVersion,
	})
}

// finish stamps the session finished in its current state. Used for the
// up-to-date and dismissed outcomes, which end without a state change.
func (o *Orchestrator) finish(ctx context.Context, active *activeSession) history.Session {
	o.mu.Lock()
	session := active.session
	session.MarkFinished(time.Now().UTC())
	session.UpdatedAt = *session.FinishedAt
	snapshot := *session
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	o.publish(Event{Kind: EventState, Session: snapshot})
	return snapshot
}

// transition moves the session to next under the lock, then persists and
// publishes the result. Illegal transitions are refused and logged.
func (o *Orchestrator) transition(ctx context.Context, active *activeSession, next history.State, mutate func(*history.Session)) history.Session {
	o.mu.Lock()
	session := active.session
	if !history.CanTransition(session.State, next) {
		o.logger.Warn("session transition refused",
			logging.String(logging.FieldSessionID, session.ID),
			logging.String("from", string(session.State)),
			logging.String("to", string(next)))
		snapshot := *session
		o.mu.Unlock()
		return snapshot
	}
	session.State = next
	session.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(session)
	}
	snapshot := *session
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	o.publish(Event{Kind: EventState, Session: snapshot})
	return snapshot
}

// persist writes the session row. Storage trouble never takes a session
// down; the in-memory state stays authoritative and the problem is logged.
func (o *Orchestrator) persist(ctx context.Context, snapshot history.Session) {
	if err := o.store.SaveSession(ctx, &snapshot); err != nil {
		o.logger.Error("persist session state",
			logging.String(logging.FieldSessionID, snapshot.ID),
			logging.String("state", string(snapshot.State)),
			logging.Error(err))
	}
}

// releaseSession tears down per-session resources once the run goroutine is
// done: the staging directory goes away and the busy slot opens up.
func (o *Orchestrator) releaseSession(active *activeSession, log *slog.Logger) {
	if err := staging.Remove(o.cfg.Paths.StagingDir, active.session.ID); err != nil {
		log.Warn("remove staging directory", logging.Error(err))
	}
	o.mu.Lock()
	if o.current == active {
		o.current = nil
	}
	o.mu.Unlock()
	active.cancel()
}

// notify publishes a user notification. Delivery problems are logged and
// never affect the session outcome.
func (o *Orchestrator) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		o.logger.Warn("notification delivery failed",
			logging.String(logging.FieldEventType, string(event)),
			logging.Error(err))
	}
}

package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"segue/internal/config"
	"segue/internal/download"
	"segue/internal/feed"
	"segue/internal/history"
	"segue/internal/logging"
	"segue/internal/notifications"
	"segue/internal/version"
)

var (
	// ErrNoSession reports a control call with no update session running.
	ErrNoSession = errors.New("no active update session")
	// ErrNotCancellable reports a cancel request outside checking/downloading.
	ErrNotCancellable = errors.New("session is past the point of cancellation")
	// ErrNotRunning reports a control call before Start or after Stop.
	ErrNotRunning = errors.New("orchestrator is not running")
)

// FeedSource fetches release candidates. Implemented by feed.Client.
type FeedSource interface {
	Fetch(ctx context.Context) ([]feed.Candidate, error)
}

// ArtifactStager downloads and verifies a candidate into a staging
// directory. Implemented by download.Stager.
type ArtifactStager interface {
	Stage(ctx context.Context, candidate feed.Candidate, dir string, progress download.Progress) (string, error)
}

// Installer is the capability interface for applying a verified artifact.
// Apply replaces the managed binary, Verify re-checks the result
// structurally, Rollback restores the previous binary. RecordVersion and
// Restart run the post-install bookkeeping. Implemented by install.Installer.
type Installer interface {
	Apply(ctx context.Context, stagedPath string) error
	Verify(ctx context.Context) error
	Rollback(ctx context.Context) error
	RecordVersion(v version.Version) error
	Restart(ctx context.Context) error
}

// Orchestrator drives update sessions through the state machine. At most one
// session runs at a time; every transition is persisted to the history store
// and published to subscribers.
type Orchestrator struct {
	cfg       *config.Config
	store     *history.Store
	source    FeedSource
	stager    ArtifactStager
	installer Installer
	notifier  notifications.Service
	logger    *slog.Logger

	mu      sync.RWMutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	current *activeSession

	subMu       sync.RWMutex
	subscribers map[int]chan Event
	nextSubID   int
}

// New constructs an orchestrator. The notifier may be nil (no notifications);
// the logger may be nil (silent).
func New(cfg *config.Config, store *history.Store, source FeedSource, stager ArtifactStager, installer Installer, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		source:      source,
		stager:      stager,
		installer:   installer,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "orchestrator"),
		subscribers: make(map[int]chan Event),
	}
}

// Start makes the orchestrator accept sessions. Sessions run under the
// supplied context; cancelling it interrupts any in-flight session the way a
// daemon shutdown would.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return errors.New("orchestrator already running")
	}
	o.runCtx, o.cancel = context.WithCancel(ctx)
	o.running = true
	return nil
}

// Stop interrupts any active session and waits for it to wind down.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
}

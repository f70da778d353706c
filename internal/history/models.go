package history

import (
	"strings"
	"time"
)

// State represents the lifecycle of an update session.
type State string

const (
	StateIdle            State = "idle"
	StateChecking        State = "checking"
	StateUpdateAvailable State = "update_available"
	StateDownloading     State = "downloading"
	StateVerified        State = "verified"
	StateInstalling      State = "installing"
	StateRestartPending  State = "restart_pending"
	StateFailed          State = "failed"
	StateCancelled       State = "cancelled"
)

// Session triggers.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// InterruptedReason is the error message recorded when unfinished sessions are
// closed because the daemon stopped.
const InterruptedReason = "daemon stopped before the session finished"

var allStates = []State{
	StateIdle,
	StateChecking,
	StateUpdateAvailable,
	StateDownloading,
	StateVerified,
	StateInstalling,
	StateRestartPending,
	StateFailed,
	StateCancelled,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// activeStates are the states a live session moves through before a terminal
// transition. Idle is not a session state; it describes the orchestrator
// between sessions.
var activeStates = map[State]struct{}{
	StateChecking:        {},
	StateUpdateAvailable: {},
	StateDownloading:     {},
	StateVerified:        {},
	StateInstalling:      {},
}

var terminalStates = map[State]struct{}{
	StateRestartPending: {},
	StateFailed:         {},
	StateCancelled:      {},
}

// validTransitions is the session state machine. Failure is reachable from
// every active state and is handled separately in CanTransition.
var validTransitions = map[State][]State{
	StateIdle:            {StateChecking},
	StateChecking:        {StateUpdateAvailable, StateIdle, StateCancelled},
	StateUpdateAvailable: {StateDownloading, StateIdle},
	StateDownloading:     {StateVerified, StateCancelled},
	StateVerified:        {StateInstalling},
	StateInstalling:      {StateRestartPending},
	StateRestartPending:  {StateIdle},
	StateFailed:          {StateIdle},
	StateCancelled:       {StateIdle},
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		_, active := activeStates[from]
		return active
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActiveState reports whether a state belongs to a live session.
func IsActiveState(state State) bool {
	_, ok := activeStates[state]
	return ok
}

// IsTerminalState reports whether a state ends a session.
func IsTerminalState(state State) bool {
	_, ok := terminalStates[state]
	return ok
}

// Session represents one update cycle persisted in SQLite.
type Session struct {
	ID               string
	Trigger          string
	Channel          string
	CurrentVersion   string
	CandidateVersion string
	State            State
	Progress         float64
	BytesTotal       int64
	BytesDone        int64
	StagedPath       string
	ErrorMessage     string
	ErrorKind        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	FinishedAt       *time.Time
}

// IsActive reports whether the session is still moving through states.
func (s Session) IsActive() bool {
	return s.FinishedAt == nil && IsActiveState(s.State)
}

// SetProgress updates the byte counters and derives the completion fraction.
func (s *Session) SetProgress(done, total int64) {
	s.BytesDone = done
	s.BytesTotal = total
	if total > 0 {
		s.Progress = float64(done) / float64(total)
	}
}

// SetFailed marks the session failed with the given message and kind label.
func (s *Session) SetFailed(message, kind string) {
	s.State = StateFailed
	s.ErrorMessage = message
	s.ErrorKind = kind
}

// MarkFinished stamps the session's completion time.
func (s *Session) MarkFinished(at time.Time) {
	finished := at.UTC()
	s.FinishedAt = &finished
}

// Session outcomes derived from the recorded final state.
const (
	OutcomeInstalled  = "installed"
	OutcomeFailed     = "failed"
	OutcomeCancelled  = "cancelled"
	OutcomeDismissed  = "dismissed"
	OutcomeUpToDate   = "up to date"
	OutcomeInProgress = "in progress"
)

// Outcome maps the recorded state to the label shown in status and history
// output. Finished sessions keep the last state they reached, so a session
// dismissed at the offer stage still reads update_available in the row.
func (s Session) Outcome() string {
	if s.FinishedAt == nil {
		return OutcomeInProgress
	}
	switch s.State {
	case StateRestartPending:
		return OutcomeInstalled
	case StateFailed:
		return OutcomeFailed
	case StateCancelled:
		return OutcomeCancelled
	case StateUpdateAvailable:
		return OutcomeDismissed
	case StateChecking:
		return OutcomeUpToDate
	default:
		return string(s.State)
	}
}

// DatabaseHealth captures diagnostic information about the history database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalSessions    int
	Error            string
}

// HealthSummary describes aggregated session counts per key outcomes.
type HealthSummary struct {
	Total     int
	Active    int
	Installed int
	Failed    int
	Cancelled int
}

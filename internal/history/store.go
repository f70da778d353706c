package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"segue/internal/config"
)

// Store manages update session history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.Paths.Database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveSession upserts a session row keyed by its identifier.
func (s *Store) SaveSession(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	if session.ID == "" {
		return errors.New("session id is empty")
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (
            id, trigger_source, channel, current_version, candidate_version,
            state, progress, bytes_total, bytes_done, staged_path,
            error_message, error_kind, created_at, updated_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            trigger_source = excluded.trigger_source,
            channel = excluded.channel,
            current_version = excluded.current_version,
            candidate_version = excluded.candidate_version,
            state = excluded.state,
            progress = excluded.progress,
            bytes_total = excluded.bytes_total,
            bytes_done = excluded.bytes_done,
            staged_path = excluded.staged_path,
            error_message = excluded.error_message,
            error_kind = excluded.error_kind,
            updated_at = excluded.updated_at,
            finished_at = excluded.finished_at`,
		session.ID,
		session.Trigger,
		session.Channel,
		nullableString(session.CurrentVersion),
		nullableString(session.CandidateVersion),
		session.State,
		session.Progress,
		session.BytesTotal,
		session.BytesDone,
		nullableString(session.StagedPath),
		nullableString(session.ErrorMessage),
		nullableString(session.ErrorKind),
		session.CreatedAt.Format(time.RFC3339Nano),
		session.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(session.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession fetches a session by identifier. Returns nil when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// RecentSessions returns the newest sessions first, capped at limit.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ActiveSession returns the unfinished session if one exists.
func (s *Store) ActiveSession(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE finished_at IS NULL ORDER BY created_at DESC LIMIT 1`,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active session: %w", err)
	}
	return session, nil
}

// CloseStaleSessions fails any session left unfinished by a previous run.
func (s *Store) CloseStaleSessions(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions
         SET state = ?, error_message = ?, error_kind = 'unknown',
             updated_at = ?, finished_at = ?
         WHERE finished_at IS NULL`,
		StateFailed,
		InterruptedReason,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("close stale sessions: %w", err)
	}
	return res.RowsAffected()
}

const sessionColumns = "id, trigger_source, channel, current_version, candidate_version, state, progress, bytes_total, bytes_done, staged_path, error_message, error_kind, created_at, updated_at, finished_at"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id               string
		trigger          string
		channel          string
		currentVersion   sql.NullString
		candidateVersion sql.NullString
		stateStr         string
		progress         sql.NullFloat64
		bytesTotal       sql.NullInt64
		bytesDone        sql.NullInt64
		stagedPath       sql.NullString
		errorMessage     sql.NullString
		errorKind        sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		finishedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&trigger,
		&channel,
		&currentVersion,
		&candidateVersion,
		&stateStr,
		&progress,
		&bytesTotal,
		&bytesDone,
		&stagedPath,
		&errorMessage,
		&errorKind,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	session := &Session{
		ID:               id,
		Trigger:          trigger,
		Channel:          channel,
		CurrentVersion:   currentVersion.String,
		CandidateVersion: candidateVersion.String,
		State:            State(stateStr),
		Progress:         progress.Float64,
		BytesTotal:       bytesTotal.Int64,
		BytesDone:        bytesDone.Int64,
		StagedPath:       stagedPath.String,
		ErrorMessage:     errorMessage.String,
		ErrorKind:        errorKind.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		session.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			session.FinishedAt = &finished
		}
	}
	return session, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

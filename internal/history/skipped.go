package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SkippedVersion is a version the user asked segue to stop offering.
type SkippedVersion struct {
	Version   string
	SkippedAt time.Time
}

// SkipVersion records a version to be excluded from candidate selection.
func (s *Store) SkipVersion(ctx context.Context, ver string) error {
	trimmed := strings.TrimSpace(ver)
	if trimmed == "" {
		return errors.New("version is empty")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO skipped_versions (version, skipped_at) VALUES (?, ?)
         ON CONFLICT(version) DO UPDATE SET skipped_at = excluded.skipped_at`,
		trimmed,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("skip version: %w", err)
	}
	return nil
}

// UnskipVersion removes a version from the skip set. Returns false when the
// version was not skipped.
func (s *Store) UnskipVersion(ctx context.Context, ver string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skipped_versions WHERE version = ?`, strings.TrimSpace(ver))
	if err != nil {
		return false, fmt.Errorf("unskip version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// IsSkipped reports whether a version is in the skip set.
func (s *Store) IsSkipped(ctx context.Context, ver string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM skipped_versions WHERE version = ?`, strings.TrimSpace(ver))
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check skipped version: %w", err)
	}
	return count > 0, nil
}

// SkippedVersions returns the skip set ordered by most recently skipped.
func (s *Store) SkippedVersions(ctx context.Context) ([]SkippedVersion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version, skipped_at FROM skipped_versions ORDER BY skipped_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query skipped versions: %w", err)
	}
	defer rows.Close()

	var skipped []SkippedVersion
	for rows.Next() {
		var (
			ver    string
			atRaw  sql.NullString
			record SkippedVersion
		)
		if err := rows.Scan(&ver, &atRaw); err != nil {
			return nil, err
		}
		record.Version = ver
		if at, err := parseTimeString(atRaw.String); err == nil {
			record.SkippedAt = at
		}
		skipped = append(skipped, record)
	}
	return skipped, rows.Err()
}

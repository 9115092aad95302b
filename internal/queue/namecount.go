package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FilenameCount returns the stored occurrence count for a basename. Never
// seen means zero.
func (s *Store) FilenameCount(ctx context.Context, basename string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count FROM filename_counts WHERE basename = ?`, basename).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("filename count %s: %w", basename, err)
	}
	return count, nil
}

// SetFilenameCount records the occurrence count for a basename.
func (s *Store) SetFilenameCount(ctx context.Context, basename string, count int) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO filename_counts (basename, count, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(basename) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		basename,
		count,
		timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set filename count %s: %w", basename, err)
	}
	return nil
}

// IncrementFilenameCount bumps the occurrence count for a basename and
// returns the new value.
func (s *Store) IncrementFilenameCount(ctx context.Context, basename string) (int, error) {
	count, err := s.FilenameCount(ctx, basename)
	if err != nil {
		return 0, err
	}
	count++
	if err := s.SetFilenameCount(ctx, basename, count); err != nil {
		return 0, err
	}
	return count, nil
}

// BasenameStatuses returns the statuses of all jobs whose input path ends
// with the given basename. Suffix comparison keeps % and _ in filenames
// literal.
func (s *Store) BasenameStatuses(ctx context.Context, basename string) ([]Status, error) {
	suffix := "/" + basename
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status FROM jobs WHERE substr(input_path, -length(?)) = ?`,
		suffix, suffix,
	)
	if err != nil {
		return nil, fmt.Errorf("basename statuses %s: %w", basename, err)
	}
	defer rows.Close()

	var statuses []Status
	for rows.Next() {
		var status Status
		if err := rows.Scan(&status); err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// BasenameActive reports whether any job with the given basename is still
// queued or running.
func (s *Store) BasenameActive(ctx context.Context, basename string) (bool, error) {
	statuses, err := s.BasenameStatuses(ctx, basename)
	if err != nil {
		return false, err
	}
	for _, status := range statuses {
		if status == StatusQueued || status == StatusRunning {
			return true, nil
		}
	}
	return false, nil
}

// FirstJobPath returns the input path of the earliest job recorded for a
// basename, or "" when none exists.
func (s *Store) FirstJobPath(ctx context.Context, basename string) (string, error) {
	var path string
	suffix := "/" + basename
	err := s.db.QueryRowContext(
		ctx,
		`SELECT input_path FROM jobs WHERE substr(input_path, -length(?)) = ? ORDER BY id LIMIT 1`,
		suffix, suffix,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("first job path %s: %w", basename, err)
	}
	return path, nil
}

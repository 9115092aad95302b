package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AcquireLock claims a named lock for the given holder token. It returns
// false without error when the lock is already held by someone else.
func (s *Store) AcquireLock(ctx context.Context, name, holder string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO locks (name, value, acquired_at) VALUES (?, ?, ?)`,
		name,
		holder,
		timestamp(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return affected > 0, nil
}

// ReleaseLock drops a named lock, but only if the holder token matches.
// Releasing an unheld lock is a no-op.
func (s *Store) ReleaseLock(ctx context.Context, name, holder string) error {
	_, err := s.db.ExecContext(
		ctx,
		`DELETE FROM locks WHERE name = ? AND value = ?`,
		name,
		holder,
	)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// ForceReleaseLock drops a named lock regardless of holder. Used when the
// holder process is known to be dead.
func (s *Store) ForceReleaseLock(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("force release lock %s: %w", name, err)
	}
	return nil
}

// LockHolder returns the holder token for a named lock, or "" when unheld.
func (s *Store) LockHolder(ctx context.Context, name string) (string, error) {
	var holder string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM locks WHERE name = ?`, name).Scan(&holder)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lock holder %s: %w", name, err)
	}
	return holder, nil
}
